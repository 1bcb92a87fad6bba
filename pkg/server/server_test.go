package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nstogner/arena/pkg/avalon"
	"github.com/nstogner/arena/pkg/runner"
	"github.com/nstogner/arena/pkg/store"
	"github.com/nstogner/arena/pkg/store/jsonl"
	"github.com/nstogner/arena/pkg/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	srv     *Server
	http    *httptest.Server
	manager *jsonl.Manager
	runner  *runner.Runner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	mgr := jsonl.NewManager(dir)
	results, err := sqlite.New(filepath.Join(dir, "results.db"))
	require.NoError(t, err)

	model := runner.MockModel()
	r := runner.New(model, runner.Options{Model: "mock", NumCards: 4},
		runner.WithManager(mgr), runner.WithResultStore(results))
	srv := New(mgr, results, r, model)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown(context.Background())
		results.Close()
	})
	return &testEnv{srv: srv, http: ts, manager: mgr, runner: r}
}

func (e *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(e.http.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, out), "body: %s", body)
	}
	return resp.StatusCode
}

func TestListEpisodesEmpty(t *testing.T) {
	e := newTestEnv(t)
	var infos []store.EpisodeInfo
	assert.Equal(t, http.StatusOK, e.get(t, "/api/episodes", &infos))
	assert.Empty(t, infos)
}

func TestGetEpisode(t *testing.T) {
	e := newTestEnv(t)
	records, err := e.runner.RunGOPS(context.Background(), 2)
	require.NoError(t, err)

	var infos []store.EpisodeInfo
	assert.Equal(t, http.StatusOK, e.get(t, "/api/episodes?task=gops", &infos))
	assert.Len(t, infos, 2)
	assert.Equal(t, http.StatusOK, e.get(t, "/api/episodes?task=avalon", &infos))
	assert.Empty(t, infos)

	var got struct {
		Header  store.Header  `json:"header"`
		Entries []store.Entry `json:"entries"`
	}
	assert.Equal(t, http.StatusOK, e.get(t, "/api/episodes/"+records[0].EpisodeID, &got))
	assert.Equal(t, store.TaskGOPS, got.Header.Task)
	require.NotEmpty(t, got.Entries)
	assert.Equal(t, store.TypeResult, got.Entries[len(got.Entries)-1].Type)

	assert.Equal(t, http.StatusNotFound, e.get(t, "/api/episodes/missing", nil))
}

func TestOverall(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.runner.RunGOPS(context.Background(), 1)
	require.NoError(t, err)

	var overall store.Overall
	assert.Equal(t, http.StatusOK, e.get(t, "/api/overall?task=gops", &overall))
	assert.Equal(t, 1, overall.Episodes)
	assert.Equal(t, 1, overall.Completed)
}

func TestListModels(t *testing.T) {
	e := newTestEnv(t)
	var names []string
	assert.Equal(t, http.StatusOK, e.get(t, "/api/models", &names))
	assert.Equal(t, []string{"scripted"}, names)
}

func TestStartEpisodes(t *testing.T) {
	e := newTestEnv(t)
	body, _ := json.Marshal(StartRequest{Task: store.TaskAvalon, Presets: []avalon.Preset{{
		NumPlayers:  5,
		QuestLeader: 0,
		RoleNames:   []string{"Merlin", "Servant", "Servant", "Minion", "Assassin"},
	}}})
	resp, err := http.Post(e.http.URL+"/api/episodes", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	e.srv.Wait()
	infos, err := e.manager.ListEpisodes()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "COMPLETED", infos[0].Status)
}

func TestStartEpisodesRejectsBadRequests(t *testing.T) {
	e := newTestEnv(t)
	for _, body := range []string{
		`{"task":"chess"}`,
		`{"task":"gops","games":0}`,
		`{"task":"avalon","presets":[{"num_players":5,"quest_leader":0,"role_names":["Merlin"]}]}`,
		`not json`,
	} {
		resp, err := http.Post(e.http.URL+"/api/episodes", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestMetrics(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.runner.RunGOPS(context.Background(), 1)
	require.NoError(t, err)

	resp, err := http.Get(e.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "arena_episodes_total")
}

func TestEpisodeEventsReplaysFinishedEpisode(t *testing.T) {
	e := newTestEnv(t)
	records, err := e.runner.RunGOPS(context.Background(), 1)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/episodes/" + records[0].EpisodeID + "/events"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))

	var header store.Header
	require.NoError(t, ws.ReadJSON(&header))
	assert.Equal(t, records[0].EpisodeID, header.ID)

	var entries []store.Entry
	for {
		var entry store.Entry
		if err := ws.ReadJSON(&entry); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			break
		}
		entries = append(entries, entry)
	}
	require.NotEmpty(t, entries)
	assert.Equal(t, store.TypeResult, entries[len(entries)-1].Type)
}
