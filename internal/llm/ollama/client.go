// Package ollama is a minimal client for the Ollama chat API in JSON mode.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client talks to a local Ollama server.
type Client struct {
	host       string
	model      string
	httpClient *http.Client
}

// New creates a client for the given Ollama host (e.g. http://127.0.0.1:11434)
// and model name. Per-call deadlines come from the context; the transport
// timeout is only a backstop.
func New(host, model string) *Client {
	return &Client{
		host:  strings.TrimRight(host, "/"),
		model: model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Message is one turn of an Ollama chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the payload sent to POST /api/chat.
type Request struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

// Response is the non-streaming payload returned by /api/chat.
type Response struct {
	Model     string  `json:"model"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
	TotalNS   int64   `json:"total_duration"`
	EvalCount int     `json:"eval_count"`
}

// ChatJSON sends a system+user exchange in JSON mode and returns the raw
// model output, which the caller parses. Temperature is pinned low so the
// model behaves like a classifier rather than a writer.
func (c *Client) ChatJSON(ctx context.Context, system, user string) ([]byte, error) {
	req := Request{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Stream: false,
		Format: "json",
		Options: map[string]any{
			"temperature": 0.1,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.host+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama api error %d: %s", resp.StatusCode, string(respBody))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if out.Message.Content == "" {
		return nil, fmt.Errorf("ollama returned empty message")
	}

	return []byte(out.Message.Content), nil
}
