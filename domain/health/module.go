package health

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/domain/consumer"
)

var Module = fx.Module("health",
	fx.Provide(
		NewProbes,
		func(w *consumer.Worker) WorkerStatus { return w },
		NewHandler,
	),
	fx.Invoke(RegisterRoutes),
)

// NewProbes pings Postgres, and Redis when it is configured.
func NewProbes(pool *pgxpool.Pool, rdb *redis.Client) map[string]Probe {
	probes := map[string]Probe{
		"database": pool.Ping,
	}
	if rdb != nil {
		probes["redis"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
	}
	return probes
}
