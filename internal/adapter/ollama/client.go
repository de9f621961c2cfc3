// Package ollama implements the reasoning provider port against a local
// Ollama server (loopback, no credential, no usage cost).
package ollama

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

// numPredict bounds the response length; verdicts are small JSON objects.
const numPredict = 2000

// Client talks to a local Ollama server.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a new Ollama reasoning client.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
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
func (c *Client) Name() string { return "ollama" }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Complete sends the prompt and returns the "response" field of the
// document-body envelope. format=json nudges the model toward bare JSON.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Format: "json",
		Options: generateOptions{
			Temperature: 0,
			NumPredict:  numPredict,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

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
			return fmt.Errorf("ollama API error %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
		}

		var gr generateResponse
		if err := json.Unmarshal(data, &gr); err != nil {
			return fmt.Errorf("unmarshal response: %w: %w", domain.ErrProviderUnavailable, err)
		}

		text = gr.Response
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
