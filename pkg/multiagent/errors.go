package multiagent

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotCurrent is returned when an adapter is used while another agent
	// holds the shared channel.
	ErrNotCurrent = errors.New("adapter is not the current agent")
	// ErrAlreadyBound is returned by Initialize for an adapter that already
	// belongs to a proxy.
	ErrAlreadyBound = errors.New("adapter already bound to a proxy")
	// ErrNotBound is returned when an adapter is used before Initialize.
	ErrNotBound = errors.New("adapter is not bound to a proxy")
	// ErrNoAgents is returned by Initialize for a proxy sized for no agents.
	ErrNoAgents = errors.New("proxy needs at least one agent")
	// ErrEmptyReply is returned when the model answers with no text.
	ErrEmptyReply = errors.New("empty reply from model")
)

// ContextLimitError reports that the shared conversation no longer fits in
// the model's context window. It ends the episode and is never retried.
type ContextLimitError struct {
	Agent int
}

func (e *ContextLimitError) Error() string {
	return fmt.Sprintf("agent %d: conversation exceeded the model context limit", e.Agent)
}

// InvalidActionError reports that a reply could not be coerced into a valid
// value for Mode even after the corrective attempt.
type InvalidActionError struct {
	Agent int
	Mode  Mode
	// Raw is the reply that was being parsed.
	Raw string
	// Answers holds the text of the first and the second failed attempt.
	Answers [2]string
	Reason  string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("agent %d: invalid %s action after retry: %s", e.Agent, e.Mode, e.Reason)
}

// ParseFailure describes why a reply did not yield a valid value.
type ParseFailure struct {
	Mode   Mode
	Reason string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("%s: %s", e.Mode, e.Reason)
}

// Status is the final state of an episode.
type Status string

const (
	StatusCompleted        Status = "COMPLETED"
	StatusContextLimit     Status = "CONTEXT_LIMIT"
	StatusInvalidAction    Status = "INVALID_ACTION"
	StatusValidationFailed Status = "VALIDATION_FAILED"

	// StatusCanceled marks an episode interrupted by its caller. Such
	// episodes are never scored.
	StatusCanceled Status = "CANCELED"
)

// Classify maps the error that ended an episode to its status. Context
// limits, invalid actions and cancellation have their own status; anything
// else is a validation failure.
func Classify(err error) Status {
	var cl *ContextLimitError
	var ia *InvalidActionError
	switch {
	case err == nil:
		return StatusCompleted
	case errors.As(err, &cl):
		return StatusContextLimit
	case errors.As(err, &ia):
		return StatusInvalidAction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	}
	return StatusValidationFailed
}
