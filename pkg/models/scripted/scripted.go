// Package scripted provides a deterministic models.ModelProvider driven by a
// Go function. It backs unit tests and offline --mock runs.
package scripted

import (
	"context"
	"fmt"
	"sync"

	"github.com/nstogner/arena/pkg/models"
)

// Responder produces the reply for a conversation.
type Responder func(messages []models.Message) (string, error)

// Model is a models.ModelProvider that answers with a Responder.
type Model struct {
	respond Responder

	mu       sync.Mutex
	requests [][]models.Message
}

var _ models.ModelProvider = (*Model)(nil)

// New returns a Model answering with respond.
func New(respond Responder) *Model {
	return &Model{respond: respond}
}

// Queue returns a Model that replies with each reply in order and fails once
// the queue is exhausted.
func Queue(replies ...string) *Model {
	var mu sync.Mutex
	next := 0
	return New(func([]models.Message) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(replies) {
			return "", fmt.Errorf("scripted queue exhausted after %d replies", len(replies))
		}
		r := replies[next]
		next++
		return r, nil
	})
}

func (m *Model) List(ctx context.Context) ([]string, error) {
	return []string{"scripted"}, nil
}

func (m *Model) Stream(ctx context.Context, modelName string, messages []models.Message) (models.ModelStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snapshot := append([]models.Message(nil), messages...)
	m.mu.Lock()
	m.requests = append(m.requests, snapshot)
	m.mu.Unlock()

	reply, err := m.respond(snapshot)
	if err != nil {
		return nil, err
	}
	return &Stream{Msg: models.Message{Role: models.RoleAgent, Content: reply}}, nil
}

// Requests returns every conversation the model was asked to answer.
func (m *Model) Requests() [][]models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]models.Message(nil), m.requests...)
}

// Calls returns the number of inference calls made so far.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

type Stream struct {
	Msg models.Message
}

func (s *Stream) FullMessage() (models.Message, error) {
	return s.Msg, nil
}

func (s *Stream) Close() error { return nil }
