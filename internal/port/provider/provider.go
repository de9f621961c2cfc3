// Package provider defines the reasoning provider port.
package provider

import "context"

// Provider is the port interface for a natural-language reasoning backend.
// Implementations absorb their envelope format (chat completion vs. document
// body) and hand back the raw answer text. A timeout, transport error or
// non-success status must surface as an error wrapping
// domain.ErrProviderUnavailable, never as a value.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g. "anthropic", "ollama").
	Name() string

	// Complete sends the prompt to the reasoning backend and returns its raw
	// text reply.
	Complete(ctx context.Context, prompt string) (string, error)
}
