package jobs

import (
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/apperror"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/auth"
)

// SubmitRateLimiter keeps one token bucket per client.
type SubmitRateLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

// NewSubmitRateLimiter returns nil when perSecond is not positive.
func NewSubmitRateLimiter(perSecond float64, burst int) *SubmitRateLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &SubmitRateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

func newSubmitRateLimiterFromConfig(cfg *config.Config) *SubmitRateLimiter {
	return NewSubmitRateLimiter(cfg.SubmitRateLimit, cfg.SubmitRateBurst)
}

// Allow reports whether client may submit now.
func (m *SubmitRateLimiter) Allow(client string) bool {
	return m.getLimiter(client).Allow()
}

// getLimiter retrieves or creates a limiter for a client
func (m *SubmitRateLimiter) getLimiter(client string) *rate.Limiter {
	m.mu.RLock()
	limiter, exists := m.limiters[client]
	m.mu.RUnlock()
	if exists {
		return limiter
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double check to prevent race condition
	if limiter, exists = m.limiters[client]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(m.limit, m.burst)
	m.limiters[client] = limiter
	return limiter
}

// Middleware rejects submissions over the client's rate with 429. A nil
// limiter lets everything through.
func (m *SubmitRateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			if !m.Allow(auth.ClientID(c)) {
				return apperror.ErrTooManyRequests
			}
			return next(c)
		}
	}
}
