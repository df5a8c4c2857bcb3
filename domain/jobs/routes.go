package jobs

import (
	"github.com/labstack/echo/v4"

	"github.com/saeedzarbi/Ai-agent-worker/pkg/auth"
)

// RegisterRoutes registers job routes
func RegisterRoutes(e *echo.Echo, h *Handler, authMiddleware *auth.Middleware, limiter *SubmitRateLimiter) {
	g := e.Group("/api")
	g.Use(authMiddleware.RequireAPIKey())

	// Submit a job for extraction
	g.POST("/jobs", h.Submit, limiter.Middleware())

	// Current status of a job
	g.GET("/jobs/:message_id", h.Get)

	// Advisory concurrency counters
	g.GET("/queue/info", h.QueueInfo)
}
