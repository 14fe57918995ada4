package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/policy-compare/internal/model"
)

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		handler(w, body)
	}))
	t.Cleanup(srv.Close)

	cfg := openai.DefaultAzureConfig("test-key", srv.URL)
	return NewOpenAIClientWithConfig(cfg)
}

func completionResponse(content string) map[string]any {
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
	}
}

func TestCompleteReasoningDeployment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, body map[string]any) {
		assert.EqualValues(t, 1000, body["max_completion_tokens"])
		assert.Nil(t, body["max_tokens"])
		assert.Nil(t, body["temperature"])
		_ = json.NewEncoder(w).Encode(completionResponse(`{"q001": "Yes"}`))
	})

	got, err := c.Complete(context.Background(), Request{
		Deployment: "o4-mini",
		System:     "You extract policy answers.",
		User:       "What is the limit?",
		MaxTokens:  1000,
		JSONMode:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"q001": "Yes"}`, got)
}

func TestCompleteStandardDeployment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, body map[string]any) {
		assert.EqualValues(t, 500, body["max_tokens"])
		assert.Nil(t, body["max_completion_tokens"])
		assert.InDelta(t, 0.2, body["temperature"], 0.001)
		_ = json.NewEncoder(w).Encode(completionResponse("plain answer"))
	})

	got, err := c.Complete(context.Background(), Request{
		Deployment:  "gpt-4o",
		User:        "Summarize.",
		MaxTokens:   500,
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "plain answer", got)
}

func TestCompleteServiceError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, body map[string]any) {
		http.Error(w, `{"error":{"message":"quota exceeded"}}`, http.StatusTooManyRequests)
	})

	_, err := c.Complete(context.Background(), Request{Deployment: "gpt-4o", User: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrExtractionService))
}

func TestIsReasoningDeployment(t *testing.T) {
	for _, name := range []string{"o1-preview", "o3-2025-04-16", "o4-mini", "gpt-5-nano"} {
		assert.True(t, isReasoningDeployment(name), name)
	}
	for _, name := range []string{"gpt-4o", "gpt-4.1-mini", "claude"} {
		assert.False(t, isReasoningDeployment(name), name)
	}
}

func TestCompleteSendsSystemMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, body map[string]any) {
		msgs := body["messages"].([]any)
		first := msgs[0].(map[string]any)
		assert.Equal(t, "system", first["role"])
		assert.True(t, strings.Contains(first["content"].(string), "insurance"))
		_ = json.NewEncoder(w).Encode(completionResponse("ok"))
	})

	_, err := c.Complete(context.Background(), Request{
		Deployment: "gpt-4o",
		System:     "You are an insurance analyst.",
		User:       "Go.",
	})
	require.NoError(t, err)
}
