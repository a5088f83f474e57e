package prune

import (
	"context"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/robalyx/marginalia/internal/worker/core"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
)

// schedule is a job and the pause between its runs.
type schedule struct {
	job      string
	interval time.Duration
}

// Worker runs each pruning job on its own interval.
type Worker struct {
	pruner    *Pruner
	reporter  *core.StatusReporter
	schedules []schedule
	logger    *zap.Logger
}

// NewWorker creates a pruning worker reporting its status through statusClient.
func NewWorker(pruner *Pruner, statusClient rueidis.Client, intervals config.Intervals, logger *zap.Logger) *Worker {
	return &Worker{
		pruner:   pruner,
		reporter: core.NewStatusReporter(statusClient, "prune", logger),
		schedules: []schedule{
			{job: JobRecentActivity, interval: minutes(intervals.RecentActivity)},
			{job: JobTopicComments, interval: minutes(intervals.TopicComments)},
			{job: JobNotifications, interval: minutes(intervals.Notifications)},
		},
		logger: logger.Named("prune_worker"),
	}
}

// Start runs the jobs until ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Prune Worker started", zap.String("workerID", w.reporter.GetWorkerID()))
	w.reporter.Start(ctx)
	defer w.reporter.Stop()

	var wg conc.WaitGroup
	for _, s := range w.schedules {
		wg.Go(func() { w.loop(ctx, s) })
	}
	wg.Wait()

	w.logger.Info("Prune Worker stopped")
}

// loop runs one job immediately and then on every tick.
func (w *Worker) loop(ctx context.Context, s schedule) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		w.runOnce(ctx, s.job)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) runOnce(ctx context.Context, job string) {
	w.reporter.UpdateStatus("Pruning "+job, 0)

	stats, err := w.pruner.Run(ctx, job)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error("Pruning run failed", zap.String("job", job), zap.Error(err))
		w.reporter.SetHealthy(false)
		return
	}

	w.reporter.SetHealthy(stats.Skipped == 0)
	w.reporter.UpdateStatus("Pruned "+job, 100)
}

func minutes(n int) time.Duration {
	return time.Duration(max(n, 1)) * time.Minute
}
