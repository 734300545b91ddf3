package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammad-safakhou/ori/internal/stages"
	"github.com/mohammad-safakhou/ori/provider/models"
)

func TestCompleteBuildsRequest(t *testing.T) {
	var got request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"Paris."}}]}`))
	}))
	defer srv.Close()

	c := NewClient("key-1", srv.URL+"/", "test-model", 0, time.Second)
	history := []models.Message{{Role: models.RoleUser, Content: "What is the capital of France?"}}
	out, err := c.Complete(context.Background(), history, stages.VerifiedResponse, "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Paris.", out)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, DefaultMaxTokens, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, models.Message{Role: models.RoleSystem, Content: stages.VerifiedResponse.SystemPrompt()}, got.Messages[0])
	assert.Equal(t, "Initial prompt: What is the capital of France?", got.Messages[1].Content)
	assert.Equal(t, history[0], got.Messages[2])
}

func TestCompleteNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	c := NewClient("k", srv.URL, "", 0, time.Second)
	_, err := c.Complete(context.Background(), nil, stages.InitialResponse, "q")
	var upErr *models.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusTooManyRequests, upErr.StatusCode)
	assert.Contains(t, upErr.Body, "rate limited")
	assert.True(t, upErr.Retryable())
}

func TestCompleteTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient("k", url, "", 0, time.Second)
	_, err := c.Complete(context.Background(), nil, stages.InitialResponse, "q")
	var upErr *models.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, 0, upErr.StatusCode)
	assert.Error(t, upErr.Unwrap())
}

func TestCompleteNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient("k", srv.URL, "", 0, time.Second).Complete(context.Background(), nil, stages.FinalResponse, "q")
	var upErr *models.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.False(t, upErr.Retryable())
}
