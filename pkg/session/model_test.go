package session

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/models/scripted"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelSessionAppendsReply(t *testing.T) {
	m := scripted.Queue("Yes")
	s := NewModelSession(m, "scripted")

	s.Inject(models.Message{Role: models.RoleUser, Content: "Do you approve?"})
	reply, err := s.Act(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Reply{Status: StatusOK, Content: "Yes"}, reply)
	assert.Equal(t, []models.Message{
		{Role: models.RoleUser, Content: "Do you approve?"},
		{Role: models.RoleAgent, Content: "Yes"},
	}, s.History())
}

func TestModelSessionBudget(t *testing.T) {
	m := scripted.Queue("never sent")
	s := NewModelSession(m, "scripted", WithMaxContextTokens(10))

	s.Inject(models.Message{Role: models.RoleUser, Content: strings.Repeat("x", 100)})
	reply, err := s.Act(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusContextLimit, reply.Status)
	assert.Equal(t, 0, m.Calls())
	assert.Len(t, s.History(), 1)
}

func TestModelSessionProviderContextLimit(t *testing.T) {
	m := scripted.New(func([]models.Message) (string, error) {
		return "", fmt.Errorf("backend: %w", models.ErrContextLimit)
	})
	s := NewModelSession(m, "scripted")
	s.Inject(models.Message{Role: models.RoleUser, Content: "hi"})

	reply, err := s.Act(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusContextLimit, reply.Status)
}

func TestSetHistoryCopies(t *testing.T) {
	s := NewModelSession(scripted.Queue(), "scripted")
	h := []models.Message{{Role: models.RoleUser, Content: "a"}}
	s.SetHistory(h)
	h[0].Content = "mutated"

	assert.Equal(t, "a", s.History()[0].Content)
}

func TestNull(t *testing.T) {
	var ch Channel = Null{}
	ch.Inject(models.Message{Role: models.RoleUser, Content: "ignored"})
	assert.Empty(t, ch.History())
	assert.True(t, IsNull(ch))
	assert.False(t, IsNull(NewModelSession(scripted.Queue(), "x")))
}
