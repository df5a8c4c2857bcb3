// Package database opens the Postgres pool shared by the job store and the
// Postgres queue backend.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"go.uber.org/fx"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var Module = fx.Module("database",
	fx.Provide(
		NewPgxPool,
		NewBunDB,
		fx.Annotate(
			func(db *bun.DB) bun.IDB { return db },
			fx.As(new(bun.IDB)),
		),
	),
)

const connectTimeout = 10 * time.Second

func poolConfig(dc config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(dc.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse pgx config: %w", err)
	}
	pc.MaxConns = int32(dc.MaxOpenConns)
	pc.MinConns = int32(dc.MaxIdleConns)
	pc.MaxConnIdleTime = dc.MaxIdleTime
	return pc, nil
}

// NewPgxPool connects and pings before returning, so a bad DSN fails startup.
func NewPgxPool(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, error) {
	log = log.With(logger.Scope("database"))

	pc, err := poolConfig(cfg.Database)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("connected to postgres",
		slog.String("host", cfg.Database.Host),
		slog.String("database", cfg.Database.Database),
		slog.Int("max_conns", int(pc.MaxConns)),
	)

	lc.Append(fx.StopHook(pool.Close))
	return pool, nil
}

// NewBunDB wraps the pool. Queries slower than DB_SLOW_QUERY are logged at
// warn; DB_QUERY_DEBUG logs every statement.
func NewBunDB(lc fx.Lifecycle, pool *pgxpool.Pool, cfg *config.Config, log *slog.Logger) *bun.DB {
	db := bun.NewDB(stdlib.OpenDBFromPool(pool), pgdialect.New())
	db.AddQueryHook(&queryHook{
		log:   log.With(logger.Scope("bun")),
		slow:  cfg.Database.SlowQuery,
		debug: cfg.Database.QueryDebug,
	})

	lc.Append(fx.StopHook(db.Close))
	return db
}

type queryHook struct {
	log   *slog.Logger
	slow  time.Duration
	debug bool
}

func (h *queryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	took := time.Since(event.StartTime)

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows):
		h.log.Error("query failed",
			slog.String("operation", event.Operation()),
			slog.Duration("took", took),
			logger.Error(event.Err),
		)
	case h.slow > 0 && took > h.slow:
		h.log.Warn("slow query",
			slog.String("query", event.Query),
			slog.Duration("took", took),
		)
	case h.debug:
		h.log.Debug("query",
			slog.String("query", event.Query),
			slog.Duration("took", took),
		)
	}
}
