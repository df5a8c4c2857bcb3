package counters

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var Module = fx.Module("counters",
	fx.Provide(NewStore),
	fx.Provide(NewFromConfig),
)

// NewStore selects the counter store. The redis backend falls back to memory
// when REDIS_ADDR is unset.
func NewStore(cfg *config.Config, rdb *redis.Client, log *slog.Logger) (Store, error) {
	log = log.With(logger.Scope("counters"))

	switch cfg.Counters.Backend {
	case config.CountersBackendRedis:
		if rdb == nil {
			log.Warn("redis not configured; counters are process-local")
			return NewMemoryStore(), nil
		}
		return NewRedisStore(rdb, cfg.Redis.KeyPrefix), nil
	case config.CountersBackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown counters backend %q", cfg.Counters.Backend)
	}
}

func NewFromConfig(cfg *config.Config, store Store) *Accountant {
	return NewAccountant(store, cfg.Counters.MaxConcurrency)
}
