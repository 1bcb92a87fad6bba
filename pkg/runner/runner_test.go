package runner

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nstogner/arena/pkg/avalon"
	"github.com/nstogner/arena/pkg/gops"
	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/models/scripted"
	"github.com/nstogner/arena/pkg/multiagent"
	"github.com/nstogner/arena/pkg/store"
	"github.com/nstogner/arena/pkg/store/jsonl"
	"github.com/nstogner/arena/pkg/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var standardPreset = avalon.Preset{
	NumPlayers:  5,
	QuestLeader: 0,
	RoleNames:   []string{"Merlin", "Servant", "Servant", "Minion", "Assassin"},
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func newTestStores(t *testing.T) (*jsonl.Manager, *sqlite.Store) {
	t.Helper()
	dir := t.TempDir()
	results, err := sqlite.New(filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { results.Close() })
	return jsonl.NewManager(dir), results
}

func TestRunAvalon(t *testing.T) {
	mgr, results := newTestStores(t)
	events := &eventLog{}
	r := New(MockModel(), Options{Model: "mock", Parallelism: 2},
		WithManager(mgr), WithResultStore(results), WithObserver(events))

	records, err := r.RunAvalon(context.Background(), []avalon.Preset{standardPreset, standardPreset})
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, string(multiagent.StatusCompleted), rec.Status)
		assert.NotEmpty(t, rec.GameResult)
		assert.Len(t, rec.Players, 5)
	}
	assert.Equal(t, 2, events.count(EventStarted))
	assert.Equal(t, 2, events.count(EventFinished))
	assert.Positive(t, events.count(EventPhase))
	assert.Positive(t, events.count(EventMessage))

	infos, err := mgr.ListEpisodes()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	for _, info := range infos {
		assert.Equal(t, string(multiagent.StatusCompleted), info.Status)
	}

	ep, err := mgr.LoadEpisode(records[0].EpisodeID)
	require.NoError(t, err)
	defer ep.Close()
	entries := ep.Entries()
	require.NotEmpty(t, entries)
	kinds := map[store.EntryType]int{}
	for _, e := range entries {
		kinds[e.Type]++
	}
	assert.Positive(t, kinds[store.TypePhase])
	assert.Positive(t, kinds[store.TypeMessage])
	assert.Equal(t, 1, kinds[store.TypeResult])
	last := entries[len(entries)-1]
	require.Equal(t, store.TypeResult, last.Type)
	assert.Equal(t, records[0].GameResult, last.Result.GameResult)

	overall, err := r.Overall(context.Background(), store.TaskAvalon)
	require.NoError(t, err)
	assert.Equal(t, 2, overall.Episodes)
	assert.Equal(t, 2, overall.Completed)
}

func TestRunAvalonWithNaiveSeats(t *testing.T) {
	r := New(MockModel(), Options{Kinds: []avalon.Kind{avalon.KindLLM, avalon.KindNaive, avalon.KindNaive, avalon.KindNaive, avalon.KindNaive}})
	records, err := r.RunAvalon(context.Background(), []avalon.Preset{standardPreset})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(multiagent.StatusCompleted), records[0].Status)
	require.Len(t, records[0].Players, 1)
	assert.Equal(t, 0, records[0].Players[0].Seat)
	assert.Equal(t, "Merlin", records[0].Players[0].Role)
}

func TestFailedEpisodeIsRecorded(t *testing.T) {
	mgr, results := newTestStores(t)
	limit := scripted.New(func([]models.Message) (string, error) {
		return "", models.ErrContextLimit
	})
	r := New(limit, Options{Model: "tiny"}, WithManager(mgr), WithResultStore(results))

	records, err := r.RunAvalon(context.Background(), []avalon.Preset{standardPreset})
	require.NoError(t, err, "a failed episode is a result, not an error")
	require.Len(t, records, 1)
	assert.Equal(t, string(multiagent.StatusContextLimit), records[0].Status)
	require.Len(t, records[0].Players, 5)
	for _, p := range records[0].Players {
		assert.False(t, p.Wins)
	}

	ep, err := mgr.LoadEpisode(records[0].EpisodeID)
	require.NoError(t, err)
	defer ep.Close()
	entries := ep.Entries()
	last := entries[len(entries)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, string(multiagent.StatusContextLimit), last.Result.ErrorKind)
	assert.NotEmpty(t, last.Result.Error)

	overall, err := results.Overall(context.Background(), store.TaskAvalon)
	require.NoError(t, err)
	assert.Equal(t, 1, overall.Episodes)
	assert.Zero(t, overall.Completed)
	assert.Zero(t, overall.WinRate)
}

func TestCancelledEpisodeIsNotScored(t *testing.T) {
	mgr, results := newTestStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	model := scripted.New(func(msgs []models.Message) (string, error) {
		mu.Lock()
		calls++
		if calls == 3 {
			cancel()
		}
		mu.Unlock()
		return mockRespond(msgs)
	})
	r := New(model, Options{Model: "mock"}, WithManager(mgr), WithResultStore(results))

	records, err := r.RunAvalon(ctx, []avalon.Preset{standardPreset})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, records, 1)
	assert.Equal(t, string(multiagent.StatusCanceled), records[0].Status)

	stored, err := results.ListResults(context.Background(), store.TaskAvalon)
	require.NoError(t, err)
	assert.Empty(t, stored, "an interrupted episode says nothing about the agents")

	overall, err := results.Overall(context.Background(), store.TaskAvalon)
	require.NoError(t, err)
	assert.Zero(t, overall.Episodes)
	assert.Empty(t, overall.StatusCounts)

	eps, err := mgr.ListEpisodes()
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, string(multiagent.StatusCanceled), eps[0].Status)
}

func TestCancelledGOPSIsNotScored(t *testing.T) {
	_, results := newTestStores(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := New(MockModel(), Options{NumCards: 5}, WithResultStore(results))
	_, err := r.RunGOPS(ctx, 2)
	require.ErrorIs(t, err, context.Canceled)

	overall, err := results.Overall(context.Background(), store.TaskGOPS)
	require.NoError(t, err)
	assert.Zero(t, overall.Episodes)
}

func TestRunGOPS(t *testing.T) {
	_, results := newTestStores(t)
	r := New(MockModel(), Options{NumCards: 5, Seed: 11, Parallelism: 3}, WithResultStore(results))

	records, err := r.RunGOPS(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, string(multiagent.StatusCompleted), rec.Status)
		require.Len(t, rec.Players, 2)
		for _, p := range rec.Players {
			assert.True(t, p.Tie, "identical policies tie")
			assert.False(t, p.Wins)
		}
	}

	overall, err := r.Overall(context.Background(), store.TaskGOPS)
	require.NoError(t, err)
	assert.Equal(t, 3, overall.Episodes)
	assert.InDelta(t, 1, overall.TieRate, 1e-9)
}

func TestRunGOPSAgainstNaive(t *testing.T) {
	r := New(MockModel(), Options{NumCards: 4, GOPSKinds: [2]gops.Kind{gops.KindNaive, gops.KindLLM}})
	records, err := r.RunGOPS(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records[0].Players, 1)
	assert.Equal(t, 1, records[0].Players[0].Seat)
}

func TestOverallWithoutStore(t *testing.T) {
	r := New(MockModel(), Options{})
	_, err := r.Overall(context.Background(), store.TaskAvalon)
	assert.Error(t, err)
}

func TestMockTeamIncludesSelf(t *testing.T) {
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "There are 5 players in this game."},
		{Role: models.RoleUser, Content: "You are Player 3, with identity Minion. You are on the Evil side."},
		{Role: models.RoleUser, Content: "Please choose 3 players from player ids 0 to 4 as the team for this quest."},
	}
	reply, err := mockRespond(msgs)
	require.NoError(t, err)
	assert.Equal(t, "[3, 4, 0]", reply)

	msgs[2].Content = "The team [3, 4, 0] is on the quest and you are a member. Do you vote to pass or fail the quest?"
	reply, err = mockRespond(msgs)
	require.NoError(t, err)
	assert.Equal(t, "No", reply)
}
