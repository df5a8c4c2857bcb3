// Package gemini adapts the Google Generative AI SDK to llm.Provider.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/genai"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/llm"
)

const DefaultModel = "gemini-2.0-flash"

// Config holds the configuration for the Gemini client
type Config struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client generates text through the Gemini API.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	timeout     time.Duration
	log         *slog.Logger
}

// NewClient creates a client. Without an API key the returned client is
// unconfigured and Complete reports llm.ErrNotConfigured.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		log:         log,
	}
	if cfg.APIKey == "" {
		return c, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	c.client = client
	return c, nil
}

// IsConfigured returns true when the SDK client was created
func (c *Client) IsConfigured() bool {
	return c.client != nil
}

// Model returns the configured model name
func (c *Client) Model() string {
	return c.model
}

// Complete runs a single GenerateContent call.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	if !c.IsConfigured() {
		return "", llm.ErrNotConfigured
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	temp := c.temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temp,
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{genai.NewPartFromText(req.SystemPrompt)},
		}
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.model, []*genai.Content{
		{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{genai.NewPartFromText(req.Prompt)},
		},
	}, config)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	c.log.Debug("gemini generation finished",
		slog.String("model", c.model),
		slog.Duration("duration", time.Since(start)),
	)

	return resp.Text(), nil
}
