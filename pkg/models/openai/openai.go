// Package openai implements models.ModelProvider for OpenAI-compatible chat
// completion endpoints (OpenAI, Groq, vLLM, FastChat, Ollama).
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nstogner/arena/pkg/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// Provider talks to an OpenAI-compatible API.
type Provider struct {
	client *goopenai.Client
}

var _ models.ModelProvider = (*Provider)(nil)

// New creates a Provider. An empty baseURL uses the public OpenAI endpoint.
func New(apiKey, baseURL string) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg)}
}

// List returns the model ids served by the endpoint.
func (p *Provider) List(ctx context.Context) ([]string, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	names := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		names = append(names, m.ID)
	}
	return names, nil
}

// Stream sends the conversation as a chat completion request.
func (p *Provider) Stream(ctx context.Context, modelName string, messages []models.Message) (models.ModelStream, error) {
	slog.Debug("OpenAI.Stream: Request Parameters", "model", modelName, "messageCount", len(messages))

	req := goopenai.ChatCompletionRequest{
		Model:    modelName,
		Messages: toChatMessages(messages),
		Stream:   true,
	}
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, classify(err)
	}
	return &chatStream{stream: stream}, nil
}

func toChatMessages(messages []models.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := goopenai.ChatMessageRoleUser
		if m.Role == models.RoleAgent {
			role = goopenai.ChatMessageRoleAssistant
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

type chatStream struct {
	stream *goopenai.ChatCompletionStream
}

func (s *chatStream) FullMessage() (models.Message, error) {
	var sb strings.Builder
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Message{}, classify(err)
		}
		for _, choice := range resp.Choices {
			sb.WriteString(choice.Delta.Content)
		}
	}
	return models.Message{Role: models.RoleAgent, Content: sb.String()}, nil
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}

// classify wraps context window failures with models.ErrContextLimit.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if code, ok := apiErr.Code.(string); ok && code == "context_length_exceeded" {
			return fmt.Errorf("%w: %v", models.ErrContextLimit, err)
		}
		if strings.Contains(strings.ToLower(apiErr.Message), "maximum context length") {
			return fmt.Errorf("%w: %v", models.ErrContextLimit, err)
		}
	}
	return err
}
