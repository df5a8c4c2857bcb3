package consumer

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/domain/agent"
	"github.com/saeedzarbi/Ai-agent-worker/domain/callback"
	"github.com/saeedzarbi/Ai-agent-worker/domain/counters"
	"github.com/saeedzarbi/Ai-agent-worker/domain/jobs"
	"github.com/saeedzarbi/Ai-agent-worker/domain/notify"
	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/internal/queue"
)

var Module = fx.Module("consumer",
	fx.Provide(NewFromConfig),
	fx.Provide(NewWorkerFromConfig),
	fx.Invoke(RegisterWorkerLifecycle),
)

func NewFromConfig(cfg *config.Config, q queue.Queue, repo *jobs.Repository, ext agent.Extractor, acct *counters.Accountant, n notify.Notifier, cb *callback.Dispatcher, log *slog.Logger) *Consumer {
	return New(q, repo, ext, acct, n, cb, Options{
		Parallelism: cfg.Queue.Parallelism,
		BatchSize:   cfg.Queue.BatchSize,
		MaxAttempts: cfg.Queue.MaxAttempts,
	}, log)
}

func NewWorkerFromConfig(cfg *config.Config, c *Consumer, log *slog.Logger) *Worker {
	return NewWorker(cfg.Queue.PollInterval, c.Poll, log)
}

// RegisterWorkerLifecycle starts the worker with the app unless
// QUEUE_WORKER_ENABLED=false.
func RegisterWorkerLifecycle(lc fx.Lifecycle, cfg *config.Config, w *Worker, log *slog.Logger) {
	if !cfg.Queue.WorkerEnabled {
		log.Info("queue worker disabled (QUEUE_WORKER_ENABLED=false)")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return w.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}
