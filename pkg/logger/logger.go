// Package logger builds the process-wide slog logger and a few attribute helpers.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("logger",
	fx.Provide(
		NewLogger,
		NewZapLogger,
		NewHTTPLogger,
	),
	fx.Invoke(registerSync),
)

// NewLogger creates the root logger. LOG_LEVEL selects the level (default info);
// GO_ENV=production or LOG_FORMAT=json switches to the JSON handler.
func NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(os.Getenv("LOG_LEVEL"))}

	var handler slog.Handler
	if useJSON() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func useJSON() bool {
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		return true
	}
	return strings.EqualFold(os.Getenv("GO_ENV"), "production")
}

// Scope tags a logger with the component it belongs to.
func Scope(name string) slog.Attr {
	return slog.String("scope", name)
}

// Error wraps an error as a structured attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewZapLogger creates the zap logger used by components that predate slog
// (migrations, HTTP access log).
func NewZapLogger() (*zap.Logger, error) {
	var cfg zap.Config
	if useJSON() {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(zapLevelName(os.Getenv("LOG_LEVEL")))
	if err == nil {
		cfg.Level = level
	}
	return cfg.Build()
}

func zapLevelName(s string) string {
	switch parseLevel(s) {
	case slog.LevelDebug:
		return "debug"
	case slog.LevelWarn:
		return "warn"
	case slog.LevelError:
		return "error"
	default:
		return "info"
	}
}

func registerSync(lc fx.Lifecycle, zl *zap.Logger, hl *HTTPLogger) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = hl.Sync()
			_ = zl.Sync()
			return nil
		},
	})
}
