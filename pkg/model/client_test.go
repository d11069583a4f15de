package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odvcencio/miser/pkg/errors"
)

func completionServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestChatCompletion(t *testing.T) {
	var gotAuth string
	var gotReq ChatRequest

	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(ChatResponse{
			ID: "chatcmpl-1",
			Choices: []Choice{
				{Message: Message{Role: "assistant", Content: "diff --git a/x b/x"}},
			},
			Usage: Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		})
	})

	client := NewClient("sk-test", server.URL, 5*time.Second, 0)
	resp, err := client.ChatCompletion(context.Background(), ChatRequest{
		Model:    "gpt-5.1",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-5.1", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.Equal(t, "diff --git a/x b/x", resp.Choices[0].Message.Content)
	assert.Equal(t, 150, resp.Usage.TotalTokens)
}

func TestChatCompletionServerError(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limit exceeded", "type": "rate_limit_error"}}`))
	})

	client := NewClient("sk-test", server.URL, 5*time.Second, 0)
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "gpt-5.1"})
	require.Error(t, err)

	assert.True(t, errors.IsCode(err, errors.ErrCodeGeneration))
	assert.True(t, errors.IsRetryable(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")
}

func TestChatCompletionClientErrorNotRetryable(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "invalid api key"}}`))
	})

	client := NewClient("sk-bad", server.URL, 5*time.Second, 0)
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "gpt-5.1"})
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))
}

func TestChatCompletionNoChoices(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ChatResponse{ID: "chatcmpl-2"})
	})

	client := NewClient("sk-test", server.URL, 5*time.Second, 0)
	_, err := client.ChatCompletion(context.Background(), ChatRequest{Model: "gpt-5.1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestChatCompletionTimeout(t *testing.T) {
	server := completionServer(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	client := NewClient("sk-test", server.URL, time.Minute, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ChatCompletion(ctx, ChatRequest{Model: "gpt-5.1"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeGenerationTimeout))
}
