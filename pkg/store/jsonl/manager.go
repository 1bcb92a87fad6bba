package jsonl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nstogner/arena/pkg/store"
)

// Manager implements the store.Manager interface using JSONL files.
type Manager struct {
	rootDir   string
	epDir     string
	eventChan chan string
	mu        sync.RWMutex
	subs      []chan string
}

var _ store.Manager = (*Manager)(nil)

func NewManager(rootDir string) *Manager {
	m := &Manager{
		rootDir:   rootDir,
		epDir:     filepath.Join(rootDir, "episodes"),
		eventChan: make(chan string, 100),
	}
	if err := os.MkdirAll(m.epDir, 0755); err != nil {
		slog.Error("Failed to create episodes directory", "dir", m.epDir, "error", err)
	}

	go m.broadcastLoop()
	return m
}

// Index represents the index.json structure
type Index struct {
	Episodes []EpisodeMeta `json:"episodes"`
}

type EpisodeMeta struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Task     string    `json:"task"`
	Model    string    `json:"model"`
	Status   string    `json:"status"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

func (m *Manager) indexPath() string { return filepath.Join(m.epDir, "index.json") }

func (m *Manager) readIndex() (Index, error) {
	var idx Index
	data, err := os.ReadFile(m.indexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(data, &idx); err != nil {
		return idx, fmt.Errorf("decoding index: %w", err)
	}
	return idx, nil
}

func (m *Manager) writeIndex(idx Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.indexPath(), data, 0644)
}

func (m *Manager) updateIndex(meta EpisodeMeta) error {
	idx, err := m.readIndex()
	if err != nil {
		return err
	}
	found := false
	for i := range idx.Episodes {
		if idx.Episodes[i].ID == meta.ID {
			idx.Episodes[i] = meta
			found = true
			break
		}
	}
	if !found {
		idx.Episodes = append(idx.Episodes, meta)
	}
	return m.writeIndex(idx)
}

func (m *Manager) SetEpisodeStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx, err := m.readIndex()
	if err != nil {
		return err
	}
	found := false
	for i := range idx.Episodes {
		if idx.Episodes[i].ID == id {
			idx.Episodes[i].Status = status
			idx.Episodes[i].Modified = time.Now()
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err := m.writeIndex(idx); err != nil {
		return err
	}
	m.publish(id)
	return nil
}

func (m *Manager) broadcastLoop() {
	for id := range m.eventChan {
		m.mu.RLock()
		for _, sub := range m.subs {
			// Non-blocking send
			select {
			case sub <- id:
			default:
			}
		}
		m.mu.RUnlock()
	}
}

func (m *Manager) Subscribe() <-chan string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan string, 10)
	m.subs = append(m.subs, ch)
	return ch
}

func (m *Manager) publish(id string) {
	select {
	case m.eventChan <- id:
	default:
	}
}

func (m *Manager) NewEpisode(h store.Header) (store.Recorder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.epDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create episodes directory: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(m.epDir, id+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create episode file: %w", err)
	}

	now := time.Now()
	h.Type = store.TypeEpisode
	h.ID = id
	h.Version = 1
	h.CreatedAt = now

	e := &Episode{
		id:         id,
		filePath:   path,
		fileHandle: f,
		notify:     m.publish,
		header:     h,
	}
	if err := e.writeLine(h); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write episode header: %w", err)
	}

	meta := EpisodeMeta{
		ID:       id,
		Path:     path,
		Task:     h.Task,
		Model:    h.Model,
		Status:   store.EpisodeStatusRunning,
		Created:  now,
		Modified: now,
	}
	if err := m.updateIndex(meta); err != nil {
		slog.Error("Failed to update episode index", "episodeID", id, "error", err)
	}
	m.publish(id)

	return e, nil
}

func (m *Manager) LoadEpisode(id string) (store.Recorder, error) {
	path := filepath.Join(m.epDir, id+".jsonl")
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open episode file: %w", err)
	}

	e := &Episode{
		filePath:   path,
		fileHandle: f,
		notify:     m.publish,
	}
	if err := e.Refresh(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	return e, nil
}

func (m *Manager) ListEpisodes() ([]store.EpisodeInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, err := m.readIndex()
	if err != nil {
		return nil, err
	}

	infos := make([]store.EpisodeInfo, 0, len(idx.Episodes))
	for _, meta := range idx.Episodes {
		infos = append(infos, store.EpisodeInfo{
			ID:       meta.ID,
			Path:     meta.Path,
			Task:     meta.Task,
			Model:    meta.Model,
			Status:   meta.Status,
			Created:  meta.Created,
			Modified: meta.Modified,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Created.After(infos[j].Created)
	})
	return infos, nil
}

func readEntries(r io.Reader) (store.Header, []store.Entry, error) {
	var h store.Header
	var entries []store.Entry

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if scanner.Scan() {
		if err := json.Unmarshal(scanner.Bytes(), &h); err != nil {
			return h, nil, fmt.Errorf("failed to unmarshal header: %w", err)
		}
	}
	for scanner.Scan() {
		var e store.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			// A partially written trailing line is picked up on the next refresh.
			continue
		}
		entries = append(entries, e)
	}
	return h, entries, scanner.Err()
}
