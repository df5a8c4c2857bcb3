// Package callback posts a job's final outcome to one downstream consumer.
// Delivery is attempted once; the caller decides what to do with the Result.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var Module = fx.Module("callback",
	fx.Provide(NewFromConfig),
)

// Kind classifies a dispatch attempt.
type Kind string

const (
	KindDelivered      Kind = "delivered"
	KindNotConfigured  Kind = "not_configured"
	KindTransportError Kind = "transport_error"
	KindHTTPError      Kind = "http_error"
)

// Payload is the body posted to the callback URL.
type Payload struct {
	MessageID  string          `json:"message_id"`
	Text       string          `json:"text"`
	Agent      string          `json:"agent"`
	Status     string          `json:"status"`
	OutputData json.RawMessage `json:"output_data"`
	Source     *string         `json:"source"`
}

// Result describes what happened to one dispatch.
type Result struct {
	Kind       Kind
	StatusCode int
	Message    string
}

// OK reports whether the outcome needs no follow-up.
func (r Result) OK() bool {
	return r.Kind == KindDelivered || r.Kind == KindNotConfigured
}

func (r Result) String() string {
	switch r.Kind {
	case KindHTTPError:
		return fmt.Sprintf("%s (status %d)", r.Kind, r.StatusCode)
	case KindTransportError:
		return fmt.Sprintf("%s: %s", r.Kind, r.Message)
	default:
		return string(r.Kind)
	}
}

// Dispatcher posts payloads with the X-API-Key header.
type Dispatcher struct {
	url    string
	apiKey string
	client *http.Client
	log    *slog.Logger
}

func NewDispatcher(url, apiKey string, timeout time.Duration, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
		log:    log.With(logger.Scope("callback")),
	}
}

func NewFromConfig(cfg *config.Config, log *slog.Logger) *Dispatcher {
	d := NewDispatcher(cfg.Callback.URL, cfg.Callback.APIKey, cfg.Callback.Timeout, log)
	if cfg.Callback.URL == "" {
		d.log.Info("callback URL not set; outcomes will not be forwarded")
	}
	return d
}

// Dispatch posts p once.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) Result {
	if d.url == "" {
		return Result{Kind: KindNotConfigured}
	}

	body, err := json.Marshal(p)
	if err != nil {
		return Result{Kind: KindTransportError, Message: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return Result{Kind: KindTransportError, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("X-API-Key", d.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Kind: KindTransportError, Message: err.Error()}
	}
	defer resp.Body.Close()
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{
			Kind:       KindHTTPError,
			StatusCode: resp.StatusCode,
			Message:    string(snippet),
		}
	}

	d.log.Debug("callback delivered",
		slog.String("message_id", p.MessageID),
		slog.Int("status", resp.StatusCode))
	return Result{Kind: KindDelivered, StatusCode: resp.StatusCode}
}
