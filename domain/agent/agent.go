// Package agent turns free text into structured real estate records by asking
// an LLM provider and interpreting its answer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/llm"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/tracing"
)

// Extractor is the contract the consumer depends on.
type Extractor interface {
	// Extract returns an Outcome for expected results (success, reject, an
	// empty or unparseable answer) and an error for everything unexpected.
	Extract(ctx context.Context, providerID, text string) (Outcome, error)
}

// Agent routes each request to the backend serving its provider.
type Agent struct {
	openAICompatible llm.Provider
	gemini           llm.Provider
	log              *slog.Logger
}

// New creates an Agent over the two backend clients.
func New(openAICompatible, gemini llm.Provider, log *slog.Logger) *Agent {
	return &Agent{
		openAICompatible: openAICompatible,
		gemini:           gemini,
		log:              log.With(logger.Scope("agent")),
	}
}

func (a *Agent) clientFor(p Provider) (llm.Provider, error) {
	b, err := route(p)
	if err != nil {
		return nil, err
	}
	switch b {
	case backendOpenAICompatible:
		return a.openAICompatible, nil
	case backendGemini:
		return a.gemini, nil
	default:
		return nil, fmt.Errorf("%w: no backend for %q", ErrUnknownProvider, string(p))
	}
}

// Extract implements Extractor.
func (a *Agent) Extract(ctx context.Context, providerID, text string) (Outcome, error) {
	ctx, span := tracing.Start(ctx, "agent.extract", attribute.String("agent.provider", providerID))
	defer span.End()

	p, err := ParseProvider(providerID)
	if err != nil {
		tracing.RecordError(span, err)
		return Outcome{}, err
	}
	client, err := a.clientFor(p)
	if err != nil {
		tracing.RecordError(span, err)
		return Outcome{}, err
	}
	if client == nil || !client.IsConfigured() {
		err := fmt.Errorf("%w: %s", ErrMissingCredential, p)
		tracing.RecordError(span, err)
		return Outcome{}, err
	}

	raw, err := client.Complete(ctx, llm.Request{SystemPrompt: systemPrompt, Prompt: text})
	if err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			err = fmt.Errorf("%w: %s", ErrMissingCredential, p)
		}
		tracing.RecordError(span, err)
		return Outcome{}, fmt.Errorf("%s completion: %w", p, err)
	}

	out := Interpret(raw, text)
	span.SetAttributes(
		attribute.String("agent.outcome", string(out.Status)),
		attribute.Int("agent.records", len(out.Records)),
	)
	if out.ParseErr != nil {
		a.log.Warn("unparseable extraction response",
			slog.String("provider", string(p)),
			slog.Int("response_length", len(raw)),
			logger.Error(out.ParseErr),
		)
	}
	return out, nil
}
