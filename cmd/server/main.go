// Package main runs the ad extraction worker: the submission API, the queue
// consumer and its scheduled maintenance tasks.
package main

import (
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/saeedzarbi/Ai-agent-worker/domain/agent"
	"github.com/saeedzarbi/Ai-agent-worker/domain/callback"
	"github.com/saeedzarbi/Ai-agent-worker/domain/consumer"
	"github.com/saeedzarbi/Ai-agent-worker/domain/counters"
	"github.com/saeedzarbi/Ai-agent-worker/domain/health"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/domain/notify"
	"github.com/saeedzarbi/Ai-agent-worker/domain/scheduler"
	"github.com/saeedzarbi/Ai-agent-worker/domain/tracing"
	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/internal/database"
	"github.com/saeedzarbi/Ai-agent-worker/internal/kv"
	"github.com/saeedzarbi/Ai-agent-worker/internal/migrate"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
	"github.com/saeedzarbi/Ai-agent-worker/internal/server"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/auth"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

func main() {
	// .env.local overrides .env; neither overrides the real environment
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		// Migrations must be applied before anything touches the tables
		migrate.Module,
		kv.Module,
		queue.Module,
		server.Module,
		tracing.Module,
		auth.Module,

		// Domain modules
		health.Module,
		counters.Module,
		agent.Module,
		notify.Module,
		callback.Module,
		jobs.Module,
		consumer.Module,
		scheduler.Module,
	).Run()
}
