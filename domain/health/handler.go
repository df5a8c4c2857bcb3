package health

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
	"github.com/saeedzarbi/Ai-agent-worker/internal/version"
)

// Probe checks one dependency.
type Probe func(ctx context.Context) error

// WorkerStatus reports whether the queue worker loop is running.
type WorkerStatus interface {
	IsRunning() bool
}

// Handler handles health check requests
type Handler struct {
	probes  map[string]Probe
	queue   queue.Queue
	worker  WorkerStatus
	cfg     *config.Config
	startAt time.Time
}

// NewHandler creates a new health handler
func NewHandler(probes map[string]Probe, q queue.Queue, worker WorkerStatus, cfg *config.Config) *Handler {
	return &Handler{
		probes:  probes,
		queue:   q,
		worker:  worker,
		cfg:     cfg,
		startAt: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Uptime    string           `json:"uptime"`
	Version   string           `json:"version"`
	Checks    map[string]Check `json:"checks"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) runProbes(ctx context.Context) (map[string]Check, bool) {
	checks := make(map[string]Check, len(h.probes))
	healthy := true
	for name, probe := range h.probes {
		if err := probe(ctx); err != nil {
			checks[name] = Check{Status: "unhealthy", Message: err.Error()}
			healthy = false
			continue
		}
		checks[name] = Check{Status: "healthy"}
	}
	return checks, healthy
}

// Health returns the overall service health
func (h *Handler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runProbes(ctx)

	if h.cfg.Queue.WorkerEnabled && h.worker != nil {
		if h.worker.IsRunning() {
			checks["worker"] = Check{Status: "healthy"}
		} else {
			checks["worker"] = Check{Status: "unhealthy", Message: "queue worker not running"}
			healthy = false
		}
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	return c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startAt).String(),
		Version:   version.Version,
		Checks:    checks,
	})
}

// Healthz returns a simple health check (for k8s liveness probe)
func (h *Handler) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// Ready returns readiness status (for k8s readiness probe)
func (h *Handler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runProbes(ctx)
	if !healthy {
		failed := make([]string, 0, len(checks))
		for name, check := range checks {
			if check.Status != "healthy" {
				failed = append(failed, name)
			}
		}
		sort.Strings(failed)
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"failed": failed,
		})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status": "ready",
	})
}

// Debug returns runtime and queue details outside production.
func (h *Handler) Debug(c echo.Context) error {
	if h.cfg.Environment == "production" {
		return echo.NewHTTPError(http.StatusNotFound, "Not found")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	out := map[string]any{
		"environment": h.cfg.Environment,
		"version":     version.Info(),
		"go_version":  runtime.Version(),
		"goroutines":  runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb": mem.Alloc / 1024 / 1024,
			"sys_mb":   mem.Sys / 1024 / 1024,
			"num_gc":   mem.NumGC,
		},
		"queue_backend": h.cfg.Queue.Backend,
	}
	if stats, err := h.queue.Stats(c.Request().Context()); err == nil {
		out["queue"] = stats
	} else {
		out["queue_error"] = err.Error()
	}

	return c.JSON(http.StatusOK, out)
}
