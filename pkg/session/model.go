package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nstogner/arena/pkg/models"
)

// ModelSession is a Channel backed by a models.ModelProvider.
type ModelSession struct {
	provider  models.ModelProvider
	modelName string
	// maxTokens is the estimated context budget; zero disables the check.
	maxTokens int

	mu      sync.Mutex
	history []models.Message
}

var _ Channel = (*ModelSession)(nil)

// Option configures a ModelSession.
type Option func(*ModelSession)

// WithMaxContextTokens makes Act report StatusContextLimit once the
// estimated size of the history exceeds n tokens.
func WithMaxContextTokens(n int) Option {
	return func(s *ModelSession) {
		s.maxTokens = n
	}
}

// NewModelSession creates a session that sends its history to modelName.
func NewModelSession(provider models.ModelProvider, modelName string, opts ...Option) *ModelSession {
	s := &ModelSession{provider: provider, modelName: modelName}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ModelSession) History() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.history...)
}

func (s *ModelSession) SetHistory(h []models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]models.Message(nil), h...)
}

func (s *ModelSession) Inject(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msg)
}

// Act sends the history to the model and appends the reply.
func (s *ModelSession) Act(ctx context.Context) (Reply, error) {
	messages := s.History()

	if s.maxTokens > 0 {
		if est := EstimateTokens(messages); est > s.maxTokens {
			slog.Warn("Context budget exceeded", "estimatedTokens", est, "maxTokens", s.maxTokens)
			return Reply{Status: StatusContextLimit}, nil
		}
	}

	stream, err := s.provider.Stream(ctx, s.modelName, messages)
	if err != nil {
		if errors.Is(err, models.ErrContextLimit) {
			return Reply{Status: StatusContextLimit}, nil
		}
		return Reply{}, fmt.Errorf("model stream error: %w", err)
	}
	defer stream.Close()

	msg, err := stream.FullMessage()
	if err != nil {
		if errors.Is(err, models.ErrContextLimit) {
			return Reply{Status: StatusContextLimit}, nil
		}
		return Reply{}, fmt.Errorf("model response error: %w", err)
	}

	s.Inject(models.Message{Role: models.RoleAgent, Content: msg.Content})
	return Reply{Status: StatusOK, Content: msg.Content}, nil
}

// EstimateTokens approximates the token count of a conversation at about
// four characters per token.
func EstimateTokens(messages []models.Message) int {
	chars := 0
	for _, m := range messages {
		chars += len(m.Content)
	}
	return chars / 4
}
