package agent

import (
	"errors"
	"fmt"
)

// Provider identifies an extraction backend. The set is closed: every switch
// over Provider must handle all of AllProviders.
type Provider string

const (
	ProviderChatGPT    Provider = "chatgpt"
	ProviderOpenRouter Provider = "openrouter"
	ProviderGemini     Provider = "gemini"
)

// AllProviders lists every accepted identifier.
var AllProviders = []Provider{ProviderChatGPT, ProviderOpenRouter, ProviderGemini}

var (
	// ErrUnknownProvider is returned for identifiers outside AllProviders.
	ErrUnknownProvider = errors.New("unknown extraction provider")
	// ErrMissingCredential is returned when the routed backend has no API key.
	ErrMissingCredential = errors.New("extraction provider credentials not configured")
)

// ParseProvider validates an identifier.
func ParseProvider(s string) (Provider, error) {
	for _, p := range AllProviders {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, s)
}

// ProviderNames returns AllProviders as strings.
func ProviderNames() []string {
	names := make([]string, len(AllProviders))
	for i, p := range AllProviders {
		names[i] = string(p)
	}
	return names
}

// backend is the client family a provider is served by.
type backend int

const (
	backendOpenAICompatible backend = iota + 1
	backendGemini
)

// route maps a provider to its backend.
func route(p Provider) (backend, error) {
	switch p {
	case ProviderChatGPT, ProviderOpenRouter:
		return backendOpenAICompatible, nil
	case ProviderGemini:
		return backendGemini, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownProvider, string(p))
	}
}
