// Package anthropic implements the reasoning provider port against the
// Anthropic messages API (cloud, credentialed).
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trialscout/trialscout/internal/domain"
	"github.com/trialscout/trialscout/internal/resilience"
)

const apiVersion = "2023-06-01"

// Client talks to the Anthropic messages API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	maxTokens  int
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new Anthropic reasoning client.
func NewClient(baseURL, apiKey, model string, maxTokens int, timeout time.Duration) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Name identifies this provider.
func (c *Client) Name() string { return "anthropic" }

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Complete sends the prompt and unwraps the chat-completion envelope down
// to the answer text. Temperature is pinned to 0 to keep verdicts as
// deterministic as the backend allows.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(messagesRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: 0,
		Messages:    []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", c.apiKey)
		req.Header.Set("anthropic-version", apiVersion)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w: %w", domain.ErrProviderUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w: %w", domain.ErrProviderUnavailable, err)
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("anthropic API error %d: %s: %w", resp.StatusCode, truncate(data, 200), domain.ErrProviderUnavailable)
		}

		var mr messagesResponse
		if err := json.Unmarshal(data, &mr); err != nil {
			return fmt.Errorf("unmarshal response: %w: %w", domain.ErrProviderUnavailable, err)
		}
		if len(mr.Content) == 0 {
			return fmt.Errorf("empty content: %w", domain.ErrProviderUnavailable)
		}

		text = mr.Content[0].Text
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				return "", fmt.Errorf("%w: %w", domain.ErrProviderUnavailable, err)
			}
			return "", err
		}
		return text, nil
	}

	if err := call(); err != nil {
		return "", err
	}
	return text, nil
}

func truncate(data []byte, n int) string {
	if len(data) > n {
		return string(data[:n]) + "..."
	}
	return string(data)
}
