package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/robalyx/marginalia/internal/database"
	"github.com/robalyx/marginalia/internal/database/migrations"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// DBLogDir specifies where tool log files are stored.
const DBLogDir = "logs/db_logs"

var (
	ErrNameRequired   = errors.New("NAME argument required")
	ErrSourceRequired = errors.New("SOURCE argument required")
	ErrUsage          = errors.New("invalid arguments")
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "db",
		Usage: "Database management tool",
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize migration tables",
				Action: withMigrator(func(ctx context.Context, _ *cli.Command, m *migrate.Migrator, _ *zap.Logger) error {
					return m.Init(ctx)
				}),
			},
			{
				Name:  "migrate",
				Usage: "Run pending migrations",
				Action: withMigrator(func(ctx context.Context, _ *cli.Command, m *migrate.Migrator, logger *zap.Logger) error {
					if err := m.Init(ctx); err != nil {
						return err
					}
					if err := m.Lock(ctx); err != nil {
						return err
					}
					defer m.Unlock(ctx) //nolint:errcheck

					group, err := m.Migrate(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No new migrations to run (database is up to date)")
						return nil
					}

					logger.Info("Successfully migrated", zap.String("group", group.String()))
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "Rollback the last migration group",
				Action: withMigrator(func(ctx context.Context, _ *cli.Command, m *migrate.Migrator, logger *zap.Logger) error {
					if err := m.Lock(ctx); err != nil {
						return err
					}
					defer m.Unlock(ctx) //nolint:errcheck

					group, err := m.Rollback(ctx)
					if err != nil {
						return err
					}

					if group.IsZero() {
						logger.Info("No groups to roll back")
						return nil
					}

					logger.Info("Successfully rolled back", zap.String("group", group.String()))
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "Show migration status",
				Action: withMigrator(func(ctx context.Context, _ *cli.Command, m *migrate.Migrator, logger *zap.Logger) error {
					ms, err := m.MigrationsWithStatus(ctx)
					if err != nil {
						return err
					}

					logger.Info("Migration status",
						zap.String("migrations", ms.String()),
						zap.String("unapplied", ms.Unapplied().String()),
						zap.String("last_group", ms.LastGroup().String()))
					return nil
				}),
			},
			{
				Name:      "create",
				Usage:     "Create a new Go migration file",
				ArgsUsage: "NAME",
				Action: withMigrator(func(ctx context.Context, c *cli.Command, m *migrate.Migrator, logger *zap.Logger) error {
					if c.Args().Len() != 1 {
						return ErrNameRequired
					}

					mf, err := m.CreateGoMigration(ctx, c.Args().First())
					if err != nil {
						return err
					}

					logger.Info("Created Go migration", zap.String("name", mf.Name), zap.String("path", mf.Path))
					return nil
				}),
			},
			flagsCommand(),
			contentCommand(),
		},
	}

	return app.Run(context.Background(), os.Args)
}

type migratorAction func(ctx context.Context, c *cli.Command, m *migrate.Migrator, logger *zap.Logger) error

// withMigrator connects to the database for the duration of a migration command.
func withMigrator(action migratorAction) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		cfg, _, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer logger.Sync() //nolint:errcheck

		db, err := database.NewConnection(ctx, &cfg.Common.PostgreSQL, logger, false)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		return action(ctx, c, migrate.NewMigrator(db.DB(), migrations.Migrations), logger)
	}
}
