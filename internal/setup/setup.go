// Package setup bootstraps the dependencies shared by every binary.
package setup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/rueidis"
	"github.com/robalyx/marginalia/internal/database"
	"github.com/robalyx/marginalia/internal/database/dbretry"
	"github.com/robalyx/marginalia/internal/database/migrations"
	"github.com/robalyx/marginalia/internal/engine"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/metrics"
	"github.com/robalyx/marginalia/internal/redis"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/robalyx/marginalia/internal/setup/telemetry"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// ErrPendingMigrations is returned when the database schema is behind.
var ErrPendingMigrations = errors.New("database migrations are pending, run `db migrate`")

// App bundles all core dependencies and services needed by the application.
type App struct {
	Config       *config.Config       // Application configuration
	Logger       *zap.Logger          // Main application logger
	DBLogger     *zap.Logger          // Database-specific logger
	DB           database.Client      // Database connection pool
	RedisManager *redis.Manager       // Redis connection manager
	Store        *kv.Store            // Realtime store of the engine aggregates
	StatusClient rueidis.Client       // Redis client for worker status reporting
	LogManager   *telemetry.Manager   // Log management system
	Registry     *prometheus.Registry // Prometheus registry of the process
	Metrics      *metrics.Metrics     // Collectors registered on Registry
}

// InitializeApp bootstraps all application dependencies in order. The worker
// name, when given, is part of the log file name.
func InitializeApp(
	ctx context.Context, serviceType telemetry.ServiceType, logDir string, workerName ...string,
) (*App, error) {
	cfg, _, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	var name string
	if len(workerName) > 0 {
		name = workerName[0]
	}

	// Logging system is initialized next to capture setup issues
	logManager, err := telemetry.NewManager(serviceType, logDir, &cfg.Common.Debug, name)
	if err != nil {
		return nil, err
	}

	logger, dbLogger, err := logManager.GetLoggers()
	if err != nil {
		return nil, err
	}

	retry := cfg.Common.Retry
	dbretry.SetPolicy(dbretry.Policy{
		MaxElapsedTime:  dbretry.DefaultPolicy.MaxElapsedTime,
		InitialInterval: time.Duration(retry.Delay) * time.Millisecond,
		MaxInterval:     time.Duration(retry.MaxDelay) * time.Millisecond,
		MaxRetries:      retry.MaxRetries,
	})

	db, err := checkMigrations(ctx, serviceType, &cfg.Common.PostgreSQL, dbLogger)
	if err != nil {
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Common.Redis, logger)

	engineClient, err := redisManager.GetClient(redis.EngineDBIndex)
	if err != nil {
		db.Close()
		return nil, err
	}

	statusClient, err := redisManager.GetClient(redis.WorkerStatusDBIndex)
	if err != nil {
		db.Close()
		redisManager.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		DBLogger:     dbLogger.Named("database"),
		DB:           db,
		RedisManager: redisManager,
		Store:        kv.New(engineClient, logger, kv.WithMaxAttempts(retry.MaxTransactionAttempts)),
		StatusClient: statusClient,
		LogManager:   logManager,
		Registry:     registry,
		Metrics:      metrics.New(registry),
	}, nil
}

// NewEngine wires the engine over the app's stores.
func (s *App) NewEngine() *engine.Engine {
	scoring := &s.Config.Common.Scoring

	return engine.New(engine.Options{
		Store:          s.Store,
		Contents:       s.DB.Model().Content(),
		Ledger:         s.DB.Model().Flag(),
		Metrics:        s.Metrics,
		Logger:         s.Logger,
		Risk:           engine.RiskParams(scoring),
		TasteThreshold: scoring.TasteScoreDeltaThreshold,
	})
}

// Cleanup shuts down all components in reverse initialization order. Errors
// are logged so every component gets a cleanup attempt.
func (s *App) Cleanup() {
	if err := s.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := s.DBLogger.Sync(); err != nil {
		log.Printf("Failed to sync DB logger: %v", err)
	}

	if err := s.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	// Redis last as other components might need it during cleanup
	s.RedisManager.Close()
}

// checkMigrations connects to the database and refuses to start services on
// an outdated schema. Tools are offered to migrate interactively.
func checkMigrations(
	ctx context.Context, serviceType telemetry.ServiceType, cfg *config.PostgreSQL, dbLogger *zap.Logger,
) (database.Client, error) {
	db, err := database.NewConnection(ctx, cfg, dbLogger, false)
	if err != nil {
		return nil, err
	}

	migrator := migrate.NewMigrator(db.DB(), migrations.Migrations)

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to check migration status: %w", err)
	}

	if len(ms.Unapplied()) == 0 {
		return db, nil
	}

	if serviceType != telemetry.ServiceTool {
		db.Close()
		return nil, ErrPendingMigrations
	}

	log.Println("Database migrations are pending. Would you like to run them now? (y/N)")

	var response string
	_, _ = fmt.Scanln(&response)

	db.Close()

	if response != "y" && response != "Y" {
		return nil, ErrPendingMigrations
	}

	return database.NewConnection(ctx, cfg, dbLogger, true)
}
