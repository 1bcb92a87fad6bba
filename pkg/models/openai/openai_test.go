package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nstogner/arena/pkg/models"
	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyContextLimit(t *testing.T) {
	err := classify(&goopenai.APIError{Code: "context_length_exceeded", Message: "too long", HTTPStatusCode: 400})
	assert.ErrorIs(t, err, models.ErrContextLimit)

	err = classify(&goopenai.APIError{Message: "This model's maximum context length is 4096 tokens", HTTPStatusCode: 400})
	assert.ErrorIs(t, err, models.ErrContextLimit)

	err = classify(errors.New("connection refused"))
	assert.NotErrorIs(t, err, models.ErrContextLimit)
}

func TestToChatMessagesRoles(t *testing.T) {
	got := toChatMessages([]models.Message{
		{Role: models.RoleUser, Content: "a"},
		{Role: models.RoleAgent, Content: "b"},
	})
	require.Len(t, got, 2)
	assert.Equal(t, goopenai.ChatMessageRoleUser, got[0].Role)
	assert.Equal(t, goopenai.ChatMessageRoleAssistant, got[1].Role)
}

func TestStreamAggregatesChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range []string{"Ye", "s"} {
			data, _ := json.Marshal(map[string]any{
				"id":      "1",
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": chunk}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := New("test-key", srv.URL+"/v1")
	stream, err := p.Stream(context.Background(), "test-model", []models.Message{{Role: models.RoleUser, Content: "vote"}})
	require.NoError(t, err)
	defer stream.Close()

	msg, err := stream.FullMessage()
	require.NoError(t, err)
	assert.Equal(t, models.Message{Role: models.RoleAgent, Content: "Yes"}, msg)
}
