package server

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nstogner/arena/pkg/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEpisodeEvents streams an episode: the header, every entry recorded so
// far, then each new entry as it is written. The stream ends after the
// result entry.
func (s *Server) handleEpisodeEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "Missing episode ID", http.StatusBadRequest)
		return
	}

	ep, err := s.manager.LoadEpisode(id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer ep.Close()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	updates := s.manager.Subscribe()
	done := make(chan struct{})

	if err := ws.WriteJSON(ep.Header()); err != nil {
		return
	}
	sent := 0
	finished, err := syncEpisode(ws, ep, &sent)
	if err != nil {
		slog.Error("Failed initial sync", "episodeID", id, "error", err)
		return
	}

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer Loop (Pusher)
	go func() {
		defer wg.Done()
		defer ws.Close()

		// Poll backup for updates dropped by a full subscriber channel.
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for !finished {
			select {
			case <-done:
				return
			case <-s.ctx.Done():
				return
			case updated := <-updates:
				if updated != id {
					continue
				}
			case <-ticker.C:
			}
			if err := ep.Refresh(); err != nil {
				slog.Error("Failed to refresh episode", "episodeID", id, "error", err)
				return
			}
			if finished, err = syncEpisode(ws, ep, &sent); err != nil {
				slog.Debug("Failed (re)sync", "episodeID", id, "error", err)
				return
			}
		}
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "episode finished"))
	}()

	// Reader Loop: the stream is one-way, reads only detect the close.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read error", "error", err)
			}
			break
		}
	}

	close(done)
	wg.Wait()
}

// syncEpisode sends the entries after the first *sent and reports whether the
// result entry has been sent.
func syncEpisode(ws *websocket.Conn, ep store.Recorder, sent *int) (bool, error) {
	entries := ep.Entries()
	finished := false
	for _, e := range entries[min(*sent, len(entries)):] {
		if err := ws.WriteJSON(e); err != nil {
			return false, err
		}
		*sent++
		if e.Type == store.TypeResult {
			finished = true
		}
	}
	return finished, nil
}
