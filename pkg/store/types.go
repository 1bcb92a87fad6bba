package store

import (
	"errors"
	"time"

	"github.com/nstogner/arena/pkg/models"
)

// ErrNotFound is returned when an episode is missing from the store.
var ErrNotFound = errors.New("episode not found")

type EntryType string

const (
	TypeEpisode EntryType = "episode"
	TypePhase   EntryType = "phase"
	TypeMessage EntryType = "message"
	TypeResult  EntryType = "result"
)

const (
	TaskAvalon = "avalon"
	TaskGOPS   = "gops"
)

// EpisodeStatusRunning marks an episode that has not produced a result yet.
// Finished episodes carry the episode status (COMPLETED, CONTEXT_LIMIT, ...).
const EpisodeStatusRunning = "running"

// Header is the first line of every episode file.
type Header struct {
	Type      EntryType `json:"type"`
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Model     string    `json:"model"`
	Seats     []string  `json:"seats,omitempty"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// Entry is one line of an episode file. Exactly one of Phase, Message or
// Result is set, matching Type.
type Entry struct {
	Type      EntryType `json:"type"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	Phase   *PhaseEntry   `json:"phase,omitempty"`
	Message *MessageEntry `json:"message,omitempty"`
	Result  *ResultEntry  `json:"result,omitempty"`
}

type PhaseEntry struct {
	Line string `json:"line"`
}

// MessageEntry is a message added to one player's transcript.
type MessageEntry struct {
	Player  int         `json:"player"`
	Role    models.Role `json:"role"`
	Content string      `json:"content"`
}

type ResultEntry struct {
	Status     string         `json:"status"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty"`
	GameResult string         `json:"game_result,omitempty"`
	Players    []PlayerRecord `json:"players,omitempty"`
}

// EpisodeInfo is the index entry of an episode.
type EpisodeInfo struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Task     string    `json:"task"`
	Model    string    `json:"model"`
	Status   string    `json:"status"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// Record is the scored outcome of one episode.
type Record struct {
	EpisodeID  string         `json:"episode_id"`
	Task       string         `json:"task"`
	Model      string         `json:"model"`
	Status     string         `json:"status"`
	GameResult string         `json:"game_result"`
	Players    []PlayerRecord `json:"players"`
	CreatedAt  time.Time      `json:"created_at"`
}

// PlayerRecord scores one model-controlled seat.
type PlayerRecord struct {
	Seat              int     `json:"seat"`
	Role              string  `json:"role,omitempty"`
	Kind              string  `json:"kind"`
	Wins              bool    `json:"wins"`
	Tie               bool    `json:"tie,omitempty"`
	Score             int     `json:"score,omitempty"`
	DeductionAccuracy float64 `json:"deduction_accuracy,omitempty"`
}

// Overall aggregates every recorded episode of a task.
type Overall struct {
	Task      string `json:"task"`
	Episodes  int    `json:"episodes"`
	Completed int    `json:"completed"`
	// WinRate is the share of model seats that won, counting seats of
	// failed episodes as losses.
	WinRate              float64         `json:"win_rate"`
	TieRate              float64         `json:"tie_rate"`
	AvgDeductionAccuracy float64         `json:"avg_deduction_accuracy"`
	StatusCounts         map[string]int  `json:"status_counts"`
	SeatWinRates         map[int]float64 `json:"seat_win_rates"`
}
