// Package server exposes recorded episodes, aggregate results and live
// episode streams over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/runner"
	"github.com/nstogner/arena/pkg/store"
)

// Server serves the API.
type Server struct {
	manager  store.Manager
	results  store.ResultStore
	runner   *runner.Runner
	provider models.ModelProvider
	srv      *http.Server

	// runs tracks episodes started through the API.
	runs   sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new Server. runner may be nil, in which case episodes cannot
// be started through the API.
func New(manager store.Manager, results store.ResultStore, r *runner.Runner, provider models.ModelProvider) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		manager:  manager,
		results:  results,
		runner:   r,
		provider: provider,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/episodes", s.handleListEpisodes)
	mux.HandleFunc("POST /api/episodes", s.handleStartEpisodes)
	mux.HandleFunc("GET /api/episodes/{id}", s.handleGetEpisode)
	mux.HandleFunc("/api/episodes/{id}/events", s.handleEpisodeEvents)

	mux.HandleFunc("GET /api/overall", s.handleOverall)
	mux.HandleFunc("GET /api/models", s.handleListModels)

	mux.Handle("GET /metrics", promhttp.Handler())

	return s.corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	slog.Info("Starting web server", "addr", addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops the HTTP server and cancels episodes started through the
// API, waiting for them to record their results.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.srv != nil {
		err = s.srv.Shutdown(ctx)
	}
	s.cancel()
	s.Wait()
	return err
}

// Wait blocks until every episode started through the API has finished.
func (s *Server) Wait() { s.runs.Wait() }

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		slog.Error("API Error", "error", err)
	} else {
		slog.Debug("API Error", "status", status, "error", err)
	}
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}
