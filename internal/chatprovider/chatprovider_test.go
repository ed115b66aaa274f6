package chatprovider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"spectrail/internal/coreerr"
)

func TestChatWithTools_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "abc", r.Header.Get("X-Org"))

		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.False(t, body.Stream)

		w.Header().Set("Content-Type", "application/json")
		content := "final content"
		resp := chatResponse{Choices: []struct {
			Message ChatMessage `json:"message"`
		}{{Message: ChatMessage{Role: "assistant", Content: &content}}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "sk-test", Temperature: 0.2, MaxTokens: 4000, ExtraHeaders: map[string]string{"X-Org": "abc"}})
	turn, err := c.ChatWithTools(context.Background(), []ChatMessage{{Role: "user", Content: strPtr("hi")}}, nil)
	require.NoError(t, err)
	require.Equal(t, "final content", *turn.Content)
}

func TestChatWithTools_MissingAPIKey(t *testing.T) {
	c := New(Config{BaseURL: "http://example.com", Model: "gpt-4o"})
	_, err := c.ChatWithTools(context.Background(), nil, nil)
	require.ErrorIs(t, err, coreerr.ErrInvalidCredentials)
}

func TestChatWithTools_401NotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "bad-key"})
	_, err := c.ChatWithTools(context.Background(), nil, nil)
	require.ErrorIs(t, err, coreerr.ErrInvalidCredentials)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestChatWithTools_429RetriesThenGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "sk-test"})
	// The 30s elapsed cap is not configurable; a 2s context keeps the test
	// from waiting that long. Within 2s the 500ms/1s backoff allows three
	// attempts: assert at least one retry happened.
	ctx, cancel := context.WithTimeout(context.Background(), 2_000_000_000) // 2s
	defer cancel()
	_, err := c.ChatWithTools(ctx, nil, nil)
	require.Error(t, err)
	require.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestChatWithTools_400NotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "gpt-4o", APIKey: "sk-test"})
	_, err := c.ChatWithTools(context.Background(), nil, nil)
	require.Error(t, err)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func strPtr(s string) *string { return &s }
