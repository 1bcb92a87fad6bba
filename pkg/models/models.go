package models

import (
	"context"
	"errors"
	"log/slog"
)

const (
	// LevelTrace is a custom log level for detailed HTTP traffic.
	LevelTrace = slog.Level(-8)
)

// ErrContextLimit is wrapped by providers when the backend rejects a
// conversation because it no longer fits in the model's context window.
var ErrContextLimit = errors.New("context limit exceeded")

// Role indicates the sender of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Message is one turn of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ModelProvider represents a service that provides LLMs (e.g. Gemini, OpenAI).
type ModelProvider interface {
	// List returns the names of available models.
	List(ctx context.Context) ([]string, error)

	// Stream sends a conversation to the LLM and returns a stream of the reply.
	Stream(ctx context.Context, modelName string, messages []Message) (ModelStream, error)
}

// ModelStream abstracts the stream of responses from the model.
type ModelStream interface {
	// FullMessage blocks until the full message is available.
	FullMessage() (Message, error)
	Close() error
}
