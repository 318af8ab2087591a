package llm

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

	"github.com/aatumaykin/leadbot/internal/logger"
)

func TestOpenAIProvider_Chat(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "cmpl-1",
			"model": "llama3.1",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": `{"subject":"hi"}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret"}, logger.Discard())
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "lead"}},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Equal(t, `{"subject":"hi"}`, resp.Content)
	assert.Equal(t, FinishReasonStop, resp.FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	assert.Equal(t, DefaultModel, got.Model)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestOpenAIProvider_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, logger.Discard())
	_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "x"}}})
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode())
	assert.Contains(t, httpErr.Body, "overloaded")
}

func TestOpenAIProvider_APIErrorAndNoChoices(t *testing.T) {
	body := `{"error":{"message":"bad model","type":"invalid_request_error"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL}, logger.Discard())
	_, err := p.Chat(context.Background(), ChatRequest{})
	require.ErrorContains(t, err, "bad model")

	body = `{"model":"m","choices":[]}`
	resp, err := p.Chat(context.Background(), ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, FinishReasonError, resp.FinishReason)
	assert.Empty(t, resp.Content)
}

func TestOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{}, logger.Discard())
	assert.Equal(t, DefaultModel, p.GetDefaultModel())
	assert.Equal(t, DefaultBaseURL+"/chat/completions", p.apiURL)
	assert.Nil(t, p.limiter)

	p = NewOpenAIProvider(OpenAIConfig{RequestsPerMinute: 30}, logger.Discard())
	require.NotNil(t, p.limiter)
	assert.Equal(t, 30, p.limiter.Available())
}

func TestTokenBucket(t *testing.T) {
	b := NewTokenBucket(2, time.Second, 1)
	now := time.Now()
	b.now = func() time.Time { return now }
	b.lastRefill = now

	ok, _ := b.TryAcquire()
	assert.True(t, ok)
	ok, _ = b.TryAcquire()
	assert.True(t, ok)

	ok, wait := b.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, time.Second, wait)

	now = now.Add(1500 * time.Millisecond)
	ok, _ = b.TryAcquire()
	assert.True(t, ok)

	ok, wait = b.TryAcquire()
	assert.False(t, ok)
	assert.Equal(t, 500*time.Millisecond, wait)

	now = now.Add(time.Hour)
	b.TryAcquire()
	assert.Equal(t, 1, b.Available(), "refill is capped at capacity")
}

func TestTokenBucket_WaitHonoursContext(t *testing.T) {
	b := NewTokenBucket(1, time.Hour, 1)
	require.NoError(t, b.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, b.Wait(ctx), context.DeadlineExceeded)
}

func TestMockProvider(t *testing.T) {
	ctx := context.Background()

	fixed := NewFixedProvider("same")
	for range 3 {
		resp, err := fixed.Chat(ctx, ChatRequest{Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, "same", resp.Content)
	}
	assert.Equal(t, 3, fixed.GetCallCount())

	fx := NewFixturesProvider([]string{"a", "b"})
	var seen []string
	for range 3 {
		resp, err := fx.Chat(ctx, ChatRequest{})
		require.NoError(t, err)
		seen = append(seen, resp.Content)
	}
	assert.Equal(t, []string{"a", "b", "a"}, seen)

	_, err := NewErrorProvider().Chat(ctx, ChatRequest{})
	require.ErrorIs(t, err, ErrMockProvider)

	after := NewMockProvider(MockConfig{Mode: MockModeFixed, Responses: []string{"ok"}, ErrorAfter: 1})
	_, err = after.Chat(ctx, ChatRequest{})
	require.NoError(t, err)
	_, err = after.Chat(ctx, ChatRequest{})
	require.ErrorIs(t, err, ErrMockProvider)
}

func TestMockProvider_DelayRespectsContext(t *testing.T) {
	m := NewMockProvider(MockConfig{Mode: MockModeFixed, Responses: []string{"x"}, Delay: time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := m.Chat(ctx, ChatRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
