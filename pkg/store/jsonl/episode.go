package jsonl

import (
	"encoding/json"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/store"
)

// Episode implements the store.Recorder interface using a JSONL file.
type Episode struct {
	mu         sync.RWMutex
	id         string
	filePath   string
	entries    []store.Entry
	fileHandle *os.File
	notify     func(string)
	header     store.Header
}

var _ store.Recorder = (*Episode)(nil)

func (e *Episode) ID() string           { return e.id }
func (e *Episode) Path() string         { return e.filePath }
func (e *Episode) Header() store.Header { return e.header }

// Append persists a generic entry, filling in its ID and timestamp.
func (e *Episode) Append(entry store.Entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if err := e.writeLine(entry); err != nil {
		return err
	}
	e.entries = append(e.entries, entry)

	if e.notify != nil {
		e.notify(e.id)
	}
	return nil
}

func (e *Episode) AppendPhase(line string) (string, error) {
	return e.appendNew(store.Entry{
		Type:  store.TypePhase,
		Phase: &store.PhaseEntry{Line: line},
	})
}

func (e *Episode) AppendMessage(player int, msg models.Message) (string, error) {
	return e.appendNew(store.Entry{
		Type: store.TypeMessage,
		Message: &store.MessageEntry{
			Player:  player,
			Role:    msg.Role,
			Content: msg.Content,
		},
	})
}

func (e *Episode) AppendResult(r store.ResultEntry) (string, error) {
	return e.appendNew(store.Entry{
		Type:   store.TypeResult,
		Result: &r,
	})
}

func (e *Episode) appendNew(entry store.Entry) (string, error) {
	entry.ID = uuid.New().String()
	if err := e.Append(entry); err != nil {
		return "", err
	}
	return entry.ID, nil
}

func (e *Episode) Entries() []store.Entry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.entries)
}

func (e *Episode) Refresh() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.fileHandle.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h, entries, err := readEntries(e.fileHandle)
	if err != nil {
		return err
	}
	e.header = h
	e.id = h.ID
	e.entries = entries
	_, err = e.fileHandle.Seek(0, io.SeekEnd)
	return err
}

func (e *Episode) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fileHandle.Close()
}

func (e *Episode) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = e.fileHandle.Write(data)
	return err
}
