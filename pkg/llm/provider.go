// Package llm provides interfaces for language model providers.
package llm

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by providers that have no credentials.
var ErrNotConfigured = errors.New("llm: provider not configured")

// Request is a single-turn completion request.
type Request struct {
	SystemPrompt string
	Prompt       string
}

// Provider is an interface for LLM providers
type Provider interface {
	// Complete returns the raw text of the model's answer.
	Complete(ctx context.Context, req Request) (string, error)

	// IsConfigured returns true if the provider is properly configured
	IsConfigured() bool
}
