package agent

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/llm/gemini"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/llm/openai"
)

var Module = fx.Module("agent",
	fx.Provide(
		NewFromConfig,
		func(a *Agent) Extractor { return a },
	),
)

// NewFromConfig builds the backend clients from AGENT_* settings.
func NewFromConfig(cfg *config.Config, log *slog.Logger) (*Agent, error) {
	ac := cfg.Agent

	oa := openai.NewClient(openai.Config{
		BaseURL:     ac.OpenAIBaseURL,
		APIKey:      ac.OpenAIAPIKey,
		Model:       ac.OpenAIModel,
		Timeout:     ac.HTTPTimeout,
		Temperature: ac.Temperature,
		Headers:     map[string]string{"X-Title": ac.AppName},
	}, openai.WithLogger(log))

	gc, err := gemini.NewClient(context.Background(), gemini.Config{
		APIKey:      ac.GeminiAPIKey,
		Model:       ac.GeminiModel,
		Temperature: ac.Temperature,
		Timeout:     ac.HTTPTimeout,
	}, log)
	if err != nil {
		return nil, err
	}

	log.Info("extraction providers configured",
		slog.Bool("openai_compatible", oa.IsConfigured()),
		slog.String("openai_model", oa.Model()),
		slog.Bool("gemini", gc.IsConfigured()),
		slog.String("gemini_model", gc.Model()),
	)

	return New(oa, gc, log), nil
}
