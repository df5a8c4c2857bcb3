// Package tracing installs the process-wide TracerProvider. Spans are
// exported over OTLP/HTTP when OTEL_EXPORTER_OTLP_ENDPOINT is set and
// dropped otherwise.
package tracing

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/internal/server"
	"github.com/saeedzarbi/Ai-agent-worker/internal/version"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var Module = fx.Module("tracing",
	fx.Provide(NewProvider),
	fx.Invoke(RegisterLifecycle, RegisterEchoMiddleware),
)

// Provider owns the SDK TracerProvider while export is enabled.
type Provider struct {
	sdk *sdktrace.TracerProvider
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool {
	return p != nil && p.sdk != nil
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.sdk.Shutdown(ctx)
}

// NewProvider registers the global TracerProvider and W3C propagators.
func NewProvider(cfg *config.Config, log *slog.Logger) (*Provider, error) {
	log = log.With(logger.Scope("tracing"))
	oc := cfg.Otel

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !oc.Enabled() {
		log.Info("tracing disabled (OTEL_EXPORTER_OTLP_ENDPOINT not set)")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	exp, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpointURL(oc.ExporterEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(newResource(cfg, log)),
		sdktrace.WithSampler(sdktrace.ParentBased(samplerFor(oc.SamplingRate))),
	)
	otel.SetTracerProvider(tp)

	log.Info("tracing enabled",
		slog.String("endpoint", oc.ExporterEndpoint),
		slog.String("service", oc.ServiceName),
		slog.Float64("sampling_rate", oc.SamplingRate),
	)
	return &Provider{sdk: tp}, nil
}

func newResource(cfg *config.Config, log *slog.Logger) *resource.Resource {
	env := cfg.Otel.Environment
	if env == "" {
		env = cfg.Environment
	}
	res, err := resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(cfg.Otel.ServiceName),
			semconv.ServiceVersion(version.Version),
			semconv.DeploymentEnvironment(env),
		),
		resource.WithFromEnv(),
		resource.WithProcess(),
	)
	if err != nil {
		// partial resources are still usable
		log.Warn("resource detection incomplete", logger.Error(err))
	}
	if res == nil {
		res = resource.Empty()
	}
	return res
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// RegisterLifecycle flushes spans when the app stops.
func RegisterLifecycle(lc fx.Lifecycle, p *Provider) {
	if !p.Enabled() {
		return
	}
	lc.Append(fx.Hook{OnStop: p.Shutdown})
}

// RegisterEchoMiddleware traces API requests.
func RegisterEchoMiddleware(e *echo.Echo, p *Provider, cfg *config.Config) {
	if !p.Enabled() {
		return
	}
	e.Use(otelecho.Middleware(cfg.Otel.ServiceName,
		otelecho.WithSkipper(func(c echo.Context) bool {
			return server.QuietPath(c.Request().URL.Path)
		}),
	))
}
