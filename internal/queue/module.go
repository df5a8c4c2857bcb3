package queue

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var Module = fx.Module("queue",
	fx.Provide(New),
)

// New builds the backend selected by QUEUE_BACKEND.
func New(cfg *config.Config, db bun.IDB, rdb *redis.Client, log *slog.Logger) (Queue, error) {
	log = log.With(logger.Scope("queue"))
	opts := Options{
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
		MaxAttempts:       cfg.Queue.MaxAttempts,
		BaseRetryDelay:    cfg.Queue.RetryBaseDelay,
	}

	switch cfg.Queue.Backend {
	case config.QueueBackendPostgres:
		log.Info("using postgres queue backend")
		return NewPostgresQueue(db, opts, log), nil
	case config.QueueBackendRedis:
		if rdb == nil {
			return nil, fmt.Errorf("queue backend %q requires REDIS_ADDR", cfg.Queue.Backend)
		}
		log.Info("using redis queue backend", slog.String("prefix", cfg.Redis.KeyPrefix))
		return NewRedisQueue(rdb, cfg.Redis.KeyPrefix, opts, log), nil
	case config.QueueBackendMemory:
		log.Warn("using in-memory queue backend; messages are lost on restart")
		return NewMemoryQueue(opts), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}
