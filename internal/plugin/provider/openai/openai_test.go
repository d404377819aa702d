package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	registryprovider "github.com/chirino/coaching-service/internal/registry/provider"
	"github.com/chirino/coaching-service/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4-turbo-preview",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "Lead with a question."}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
}`

func TestComplete_NormalizesResponse(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer server.Close()

	p := New("test-key", server.URL, "gpt-4-turbo-preview")
	out, err := p.Complete(context.Background(), registryprovider.Prompt{
		System: "You are a sales coach.",
		Messages: []registryprovider.Message{
			{Role: registryprovider.RoleUser, Content: "hello"},
			{Role: registryprovider.RoleAssistant, Content: "hi"},
			{Role: registryprovider.RoleUser, Content: "how do I open?"},
		},
	}, registryprovider.Options{Temperature: 0.7, MaxTokens: 2000})
	require.NoError(t, err)

	assert.Equal(t, "Lead with a question.", out.Text)
	assert.Equal(t, "stop", out.FinishReason)
	assert.Equal(t, 25, out.TokensUsed)

	assert.Equal(t, "gpt-4-turbo-preview", got["model"])
	messages := got["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[2].(map[string]any)["role"])
}

func TestComplete_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	_, err := New("k", server.URL, "gpt").Complete(context.Background(), registryprovider.Prompt{
		Messages: []registryprovider.Message{{Role: registryprovider.RoleUser, Content: "x"}},
	}, registryprovider.Options{})
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestComplete_UnauthorizedIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := New("k", server.URL, "gpt").Complete(context.Background(), registryprovider.Prompt{
		Messages: []registryprovider.Message{{Role: registryprovider.RoleUser, Content: "x"}},
	}, registryprovider.Options{})
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
}
