package store

import (
	"context"

	"github.com/nstogner/arena/pkg/models"
)

// Recorder is the append-only log of one episode.
type Recorder interface {
	ID() string
	Path() string
	Header() Header

	// Append persists a generic entry.
	Append(e Entry) error
	AppendPhase(line string) (string, error)
	AppendMessage(player int, msg models.Message) (string, error)
	AppendResult(r ResultEntry) (string, error)

	// Entries returns every entry in file order.
	Entries() []Entry
	// Refresh rereads the file, picking up entries written by another process.
	Refresh() error

	Close() error
}

// Manager handles the lifecycle of episode logs.
type Manager interface {
	// NewEpisode creates a new log with a fresh ID.
	NewEpisode(h Header) (Recorder, error)
	// LoadEpisode opens an existing log.
	LoadEpisode(id string) (Recorder, error)
	// ListEpisodes returns every episode, newest first.
	ListEpisodes() ([]EpisodeInfo, error)
	SetEpisodeStatus(id, status string) error
	// Subscribe returns a channel receiving the IDs of updated episodes.
	Subscribe() <-chan string
}

// ResultStore persists scored episodes.
type ResultStore interface {
	SaveResult(ctx context.Context, r Record) error
	ListResults(ctx context.Context, task string) ([]Record, error)
	Overall(ctx context.Context, task string) (Overall, error)
	Close() error
}
