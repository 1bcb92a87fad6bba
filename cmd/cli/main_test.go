package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/store"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, models.LevelTrace, parseLevel("trace"))
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestRunMock(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ARENA_STORE_DIR", dir)

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--mock", "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Played 1 episodes.")
	assert.Contains(t, out.String(), "Overall: avalon")
	assert.FileExists(t, filepath.Join(dir, "results.db"))

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"overall", "--mock", "--task", "gops"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Overall: gops")
}

func TestModelsMock(t *testing.T) {
	t.Setenv("ARENA_STORE_DIR", t.TempDir())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"models", "--mock"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "scripted\n", out.String())
}

func TestRenderEntries(t *testing.T) {
	h := store.Header{Task: store.TaskAvalon, Model: "mock", Seats: []string{"llm", "naive"}}
	entries := []store.Entry{
		{Type: store.TypePhase, Phase: &store.PhaseEntry{Line: "Quest 1 begins"}},
		{Type: store.TypeMessage, Message: &store.MessageEntry{Player: 0, Role: models.RoleUser, Content: "Pick a team"}},
		{Type: store.TypeMessage, Message: &store.MessageEntry{Player: 0, Role: models.RoleAgent, Content: "Players 0 and 1"}},
		{Type: store.TypeResult, Result: &store.ResultEntry{Status: "COMPLETED", GameResult: "Good wins"}},
	}

	got := renderEntries(h, entries, nil, false)
	assert.Contains(t, got, "AVALON with mock, seats: llm, naive")
	assert.Contains(t, got, "Quest 1 begins")
	assert.Contains(t, got, "Player 0:")
	assert.Contains(t, got, "Players 0 and 1")
	assert.Contains(t, got, "Good wins")
	assert.NotContains(t, got, "Pick a team")

	assert.Contains(t, renderEntries(h, entries, nil, true), "to Player 0: Pick a team")
}
