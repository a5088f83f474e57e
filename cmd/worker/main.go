package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robalyx/marginalia/internal/setup"
	"github.com/robalyx/marginalia/internal/setup/telemetry"
	"github.com/robalyx/marginalia/internal/worker/core"
	"github.com/robalyx/marginalia/internal/worker/prune"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

const (
	// WorkerLogDir specifies where worker log files are stored.
	WorkerLogDir = "logs/worker_logs"

	// PruneWorker trims the bounded logs on a schedule.
	PruneWorker = "prune"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "worker",
		Usage: "Start the marginalia workers",
		Commands: []*cli.Command{
			{
				Name:  PruneWorker,
				Usage: "Start the pruning worker",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runPruneWorker(ctx)
				},
			},
			{
				Name:  "run-once",
				Usage: "Run a single pruning job and exit",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "job",
						Usage:    fmt.Sprintf("Job to run (%s, %s, %s)", prune.JobRecentActivity, prune.JobTopicComments, prune.JobNotifications),
						Required: true,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runOnce(ctx, c.String("job"))
				},
			},
			{
				Name:  "status",
				Usage: "List the reported worker statuses",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return showStatus(ctx)
				},
			},
		},
	}

	return app.Run(context.Background(), os.Args)
}

func newPruner(app *setup.App) *prune.Pruner {
	cfg := app.Config.Worker
	return prune.NewPruner(app.Store, cfg.Retention, cfg.BatchSizes, app.Metrics, app.Logger.Named("prune"))
}

// runPruneWorker runs the scheduled jobs until the process is signalled.
func runPruneWorker(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, PruneWorker)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := prune.NewWorker(newPruner(app), app.StatusClient, app.Config.Worker.Intervals, app.Logger)
	w.Start(ctx)

	app.Logger.Info("Worker stopped")
	return nil
}

func runOnce(ctx context.Context, job string) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceWorker, WorkerLogDir, PruneWorker)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	start := time.Now()
	stats, err := newPruner(app).Run(ctx, job)
	if err != nil {
		return err
	}

	app.Logger.Info("Pruning job finished",
		zap.String("job", job),
		zap.Int("units", stats.Units),
		zap.Int("skipped", stats.Skipped),
		zap.Int("removed", stats.Removed),
		zap.Duration("duration", time.Since(start)))
	return nil
}

func showStatus(ctx context.Context) error {
	app, err := setup.InitializeApp(ctx, telemetry.ServiceTool, WorkerLogDir)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	statuses, err := core.NewMonitor(app.StatusClient, app.Logger).GetAllStatuses(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	for _, s := range statuses {
		state := "healthy"
		switch {
		case s.Stale(now):
			state = "offline"
		case !s.IsHealthy:
			state = "unhealthy"
		}

		fmt.Printf("%-10s %-40s %-9s %3d%%  %s\n", s.WorkerType, s.WorkerID, state, s.Progress, s.CurrentTask)
	}
	return nil
}
