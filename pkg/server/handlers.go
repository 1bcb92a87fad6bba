package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nstogner/arena/pkg/avalon"
	"github.com/nstogner/arena/pkg/store"
)

// --- Episodes ---

func (s *Server) handleListEpisodes(w http.ResponseWriter, r *http.Request) {
	episodes, err := s.manager.ListEpisodes()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	if task := r.URL.Query().Get("task"); task != "" {
		filtered := episodes[:0]
		for _, e := range episodes {
			if e.Task == task {
				filtered = append(filtered, e)
			}
		}
		episodes = filtered
	}
	s.jsonResponse(w, http.StatusOK, episodes)
}

func (s *Server) handleGetEpisode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ep, err := s.manager.LoadEpisode(id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	defer ep.Close()

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"header":  ep.Header(),
		"entries": ep.Entries(),
	})
}

// StartRequest starts a batch of episodes in the background.
type StartRequest struct {
	Task string `json:"task"`
	// Presets lists one Avalon episode per preset.
	Presets []avalon.Preset `json:"presets,omitempty"`
	// Games is the number of GOPS games to play.
	Games int `json:"games,omitempty"`
}

func (s *Server) handleStartEpisodes(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, fmt.Errorf("no runner configured"))
		return
	}
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}

	var run func() error
	var count int
	switch req.Task {
	case store.TaskAvalon:
		if len(req.Presets) == 0 {
			s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("presets are required"))
			return
		}
		for i, p := range req.Presets {
			cfg, err := avalon.NewConfig(p.NumPlayers)
			if err == nil {
				_, err = p.Roles(cfg)
			}
			if err != nil {
				s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("preset %d: %w", i, err))
				return
			}
		}
		count = len(req.Presets)
		run = func() error {
			_, err := s.runner.RunAvalon(s.ctx, req.Presets)
			return err
		}
	case store.TaskGOPS:
		if req.Games < 1 {
			s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("games must be positive"))
			return
		}
		count = req.Games
		run = func() error {
			_, err := s.runner.RunGOPS(s.ctx, req.Games)
			return err
		}
	default:
		s.errorResponse(w, http.StatusBadRequest, fmt.Errorf("unknown task %q", req.Task))
		return
	}

	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		if err := run(); err != nil {
			slog.Error("Episode batch failed", "task", req.Task, "error", err)
		}
	}()
	s.jsonResponse(w, http.StatusAccepted, map[string]any{"task": req.Task, "episodes": count})
}

// --- Results ---

func (s *Server) handleOverall(w http.ResponseWriter, r *http.Request) {
	if s.results == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, fmt.Errorf("no result store configured"))
		return
	}
	task := r.URL.Query().Get("task")
	if task == "" {
		task = store.TaskAvalon
	}
	overall, err := s.results.Overall(r.Context(), task)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, overall)
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.provider.List(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}
