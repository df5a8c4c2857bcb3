// Package auth guards the API with a static key sent in the X-API-Key header.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

// HeaderAPIKey carries the client's key.
const HeaderAPIKey = "X-API-Key"

const clientIDKey = "auth_client_id"

var Module = fx.Module("auth",
	fx.Provide(NewMiddleware),
)

// Middleware checks API keys.
type Middleware struct {
	apiKey string
	log    *slog.Logger
}

// NewMiddleware creates the middleware from API_KEY. An empty key disables checks.
func NewMiddleware(cfg *config.Config, log *slog.Logger) *Middleware {
	log = log.With(logger.Scope("auth"))
	if cfg.APIKey == "" {
		log.Warn("API_KEY not set; /api routes are unauthenticated")
	}
	return &Middleware{apiKey: cfg.APIKey, log: log}
}

// RequireAPIKey rejects requests without the configured key and records a
// client identifier for downstream middleware.
func (m *Middleware) RequireAPIKey() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m.apiKey == "" {
				c.Set(clientIDKey, "ip:"+c.RealIP())
				return next(c)
			}

			key := c.Request().Header.Get(HeaderAPIKey)
			if key == "" {
				return apperror.ErrUnauthorized
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(m.apiKey)) != 1 {
				m.log.Warn("invalid API key", slog.String("ip", c.RealIP()))
				return apperror.ErrInvalidKey
			}

			c.Set(clientIDKey, "key:"+fingerprint(key))
			return next(c)
		}
	}
}

// ClientID returns the identifier recorded by RequireAPIKey, or the caller's IP.
func ClientID(c echo.Context) string {
	if id, ok := c.Get(clientIDKey).(string); ok && id != "" {
		return id
	}
	return "ip:" + c.RealIP()
}

func fingerprint(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
