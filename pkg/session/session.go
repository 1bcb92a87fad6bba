// Package session defines the single stateful conversation channel that
// logical agents share, plus a model-backed and a null implementation.
package session

import (
	"context"

	"github.com/nstogner/arena/pkg/models"
)

// Status reports how an inference call ended.
type Status string

const (
	StatusOK           Status = "OK"
	StatusContextLimit Status = "CONTEXT_LIMIT"
)

// Reply is the outcome of one inference call.
type Reply struct {
	Status  Status
	Content string
}

// Channel is a stateful conversation with a language model. Callers inject
// messages and then call Act; a successful reply is appended to the history
// as an agent message.
type Channel interface {
	// History returns a copy of the current history.
	History() []models.Message
	// SetHistory replaces the whole history with a copy of h.
	SetHistory(h []models.Message)
	// Inject appends a message without running inference.
	Inject(msg models.Message)
	// Act runs inference on the current history.
	Act(ctx context.Context) (Reply, error)
}

// Null is the stand-in channel for players that are not model-controlled.
// It keeps no history and never answers.
type Null struct{}

var _ Channel = Null{}

func (Null) History() []models.Message          { return nil }
func (Null) SetHistory([]models.Message)        {}
func (Null) Inject(models.Message)              {}
func (Null) Act(context.Context) (Reply, error) { return Reply{Status: StatusOK}, nil }

// IsNull reports whether ch is the null stand-in.
func IsNull(ch Channel) bool {
	_, ok := ch.(Null)
	return ok
}
