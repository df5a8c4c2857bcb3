// Command migrate applies the embedded database migrations.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/saeedzarbi/Ai-agent-worker/internal/config"
	"github.com/saeedzarbi/Ai-agent-worker/internal/migrate"
	"github.com/saeedzarbi/Ai-agent-worker/internal/version"
	"github.com/saeedzarbi/Ai-agent-worker/pkg/logger"
)

var dsn string

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the ad-worker database schema",
		Version:      version.Info().String(),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "Postgres DSN (default: built from POSTGRES_* variables)")

	root.AddCommand(
		migratorCommand("up", "Apply all pending migrations", func(ctx context.Context, m *migrate.Migrator) error {
			return m.Up(ctx)
		}),
		migratorCommand("down", "Roll back the most recent migration", func(ctx context.Context, m *migrate.Migrator) error {
			return m.Down(ctx)
		}),
		migratorCommand("status", "Print applied and pending migrations", func(ctx context.Context, m *migrate.Migrator) error {
			return m.Status(ctx)
		}),
		migratorCommand("version", "Print the current schema version", func(ctx context.Context, m *migrate.Migrator) error {
			v, err := m.Version(ctx)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}),
	)
	return root
}

func migratorCommand(use, short string, run func(context.Context, *migrate.Migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			zl, err := logger.NewZapLogger()
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()

			db, err := open(zl)
			if err != nil {
				return err
			}
			defer db.Close()

			return run(cmd.Context(), migrate.NewMigrator(db, zl))
		},
	}
}

func open(zl *zap.Logger) (*sql.DB, error) {
	target := dsn
	if target == "" {
		cfg, err := config.NewConfig(slog.New(slog.DiscardHandler))
		if err != nil {
			return nil, err
		}
		target = cfg.Database.DSN()
	}

	db := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(target)))
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}
	zl.Debug("connected to database")
	return db, nil
}
