// Package chatprovider is an OpenAI-compatible chat-completions client with
// the exact retry policy spec.md §4.7 names.
//
// Grounded on original_source/src-tauri/src/llm/{client,types}.rs for the
// wire shapes and the classification of which statuses retry, and on
// internal/app/minimax.go for the teacher's *http.Client-wrapping struct
// shape (though the teacher's own wire protocol is Anthropic/Minimax-style
// text, not OpenAI tool_calls, so the protocol here is rebuilt from the
// Rust original rather than adapted from minimax.go).
//
// No repo in the pack declares a generic backoff/retry library, and the
// policy here has exact numeric constants (500ms/4s/30s) rather than
// generic jittered behavior — a small deterministic implementation over
// stdlib time/context is the better-grounded choice than wrapping a
// general-purpose backoff package for three fixed numbers.
package chatprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"spectrail/internal/coreerr"
	"spectrail/internal/toolregistry"
)

const (
	httpTimeout     = 120 * time.Second
	retryInitial    = 500 * time.Millisecond
	retryMax        = 4 * time.Second
	retryElapsedCap = 30 * time.Second
)

// ChatMessage is the wire shape of one message, matching the OpenAI
// tool_calls contract (spec.md §6).
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID *string    `json:"tool_call_id,omitempty"`
}

// ToolCall is one assistant-issued function call.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function ToolCallFunc `json:"function"`
}

// ToolCallFunc carries the function name and its JSON-encoded arguments
// (arguments is a string, OpenAI-style, not a nested object).
type ToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []ChatMessage        `json:"messages"`
	Tools       []toolregistry.Schema `json:"tools,omitempty"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens"`
	Stream      bool                 `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// AssistantTurn is the decoded choices[0].message the caller acts on.
type AssistantTurn struct {
	Content   *string
	ToolCalls []ToolCall
}

// Config is the per-run, snapshot-captured provider configuration (spec.md
// §9: captured once, never re-read mid-run).
type Config struct {
	BaseURL      string
	Model        string
	APIKey       string
	Temperature  float64
	MaxTokens    int
	ExtraHeaders map[string]string
}

// Client is the ChatProvider implementation.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client with a 120s HTTP timeout, matching both the teacher's
// MinimaxClient and the Rust original's reqwest::Client::builder timeout.
func New(cfg Config) *Client {
	return &Client{cfg: cfg, http: &http.Client{Timeout: httpTimeout}}
}

// ChatWithTools calls POST {base_url}/chat/completions with the given
// messages and tool schemas, retrying per spec.md §4.7, and returns the
// decoded assistant turn.
func (c *Client) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []toolregistry.Schema) (AssistantTurn, error) {
	if c.cfg.APIKey == "" {
		return AssistantTurn{}, coreerr.ErrInvalidCredentials
	}

	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		Stream:      false,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return AssistantTurn{}, fmt.Errorf("%w: %v", coreerr.ErrInvalidArgs, err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"

	resp, err := c.doWithRetry(ctx, url, payload)
	if err != nil {
		return AssistantTurn{}, err
	}

	if len(resp.Choices) == 0 {
		return AssistantTurn{}, fmt.Errorf("%w: no choices in response", coreerr.ErrNetworkError)
	}
	msg := resp.Choices[0].Message
	return AssistantTurn{Content: msg.Content, ToolCalls: msg.ToolCalls}, nil
}

// doWithRetry implements the exponential backoff: initial 500ms, cap 4s,
// total elapsed cap 30s. Retries on network errors, 429, and 5xx; gives up
// immediately on 400/401/403/404/422.
func (c *Client) doWithRetry(ctx context.Context, url string, payload []byte) (chatResponse, error) {
	deadline := time.Now().Add(retryElapsedCap)
	interval := retryInitial

	for {
		resp, retryable, err := c.attempt(ctx, url, payload)
		if err == nil {
			return resp, nil
		}
		if !retryable || time.Now().After(deadline) {
			return chatResponse{}, err
		}

		remaining := deadline.Sub(time.Now())
		if remaining <= 0 {
			return chatResponse{}, err
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return chatResponse{}, ctx.Err()
		case <-time.After(wait):
		}
		interval *= 2
		if interval > retryMax {
			interval = retryMax
		}
	}
}

// attempt performs one HTTP round trip, classifying the outcome into
// (response, retryable, error).
func (c *Client) attempt(ctx context.Context, url string, payload []byte) (chatResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return chatResponse{}, false, fmt.Errorf("%w: %v", coreerr.ErrNetworkError, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	// extra_headers merge last, after Authorization/Content-Type are set,
	// so the user cannot rename those two keys away (spec.md §4.7).
	for k, v := range c.cfg.ExtraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return chatResponse{}, false, fmt.Errorf("%w: %v", coreerr.ErrTimeout, err)
		}
		return chatResponse{}, true, fmt.Errorf("%w: %v", coreerr.ErrNetworkError, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var decoded chatResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return chatResponse{}, false, fmt.Errorf("%w: decoding response: %v", coreerr.ErrNetworkError, err)
		}
		return decoded, false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		return chatResponse{}, false, coreerr.ErrInvalidCredentials
	case resp.StatusCode == http.StatusTooManyRequests:
		return chatResponse{}, true, coreerr.ErrRateLimited
	case resp.StatusCode >= 500:
		return chatResponse{}, true, &coreerr.ProviderError{Status: resp.StatusCode, Message: string(body)}
	default:
		return chatResponse{}, false, &coreerr.ProviderError{Status: resp.StatusCode, Message: string(body)}
	}
}
