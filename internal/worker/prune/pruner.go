// Package prune bounds the per-user recent activity logs, the per-topic
// comment indexes and the per-user notification logs.
package prune

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/metrics"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Job names.
const (
	JobRecentActivity = "recent_activity"
	JobTopicComments  = "topic_comments"
	JobNotifications  = "notifications"
)

// Stats summarizes a pruning run.
type Stats struct {
	Units   int // Units pruned
	Skipped int // Units that failed and were left for the next run
	Removed int // Entries removed
}

// job describes one bounded list family.
type job struct {
	name      string
	countsKey string
	max       int64
	batchSize int
	unit      func(ctx context.Context, id string) (int, error)
}

// Pruner runs the pruning jobs.
type Pruner struct {
	store       *kv.Store
	retention   config.Retention
	batchSizes  config.BatchSizes
	metrics     *metrics.Metrics
	logger      *zap.Logger
	concurrency int
}

// NewPruner creates a pruner.
func NewPruner(
	store *kv.Store, retention config.Retention, batchSizes config.BatchSizes, m *metrics.Metrics, logger *zap.Logger,
) *Pruner {
	return &Pruner{
		store:       store,
		retention:   retention,
		batchSizes:  batchSizes,
		metrics:     m,
		logger:      logger.Named("pruner"),
		concurrency: max(batchSizes.PruneConcurrency, 1),
	}
}

// Run executes the named job.
func (p *Pruner) Run(ctx context.Context, name string) (Stats, error) {
	switch name {
	case JobRecentActivity:
		return p.RecentActivity(ctx)
	case JobTopicComments:
		return p.TopicComments(ctx)
	case JobNotifications:
		return p.Notifications(ctx)
	default:
		return Stats{}, fmt.Errorf("unknown pruning job %q", name)
	}
}

// RecentActivity keeps the most recent stable entries of every user whose
// log exceeds the max.
func (p *Pruner) RecentActivity(ctx context.Context) (Stats, error) {
	return p.run(ctx, job{
		name:      JobRecentActivity,
		countsKey: kv.RecentActivityCounts,
		max:       p.retention.MaxRecentActivity,
		batchSize: p.batchSizes.PruneActivityUsers,
		unit:      p.pruneActivity,
	})
}

// TopicComments keeps the stable hottest comments of every topic whose
// index exceeds the max.
func (p *Pruner) TopicComments(ctx context.Context) (Stats, error) {
	return p.run(ctx, job{
		name:      JobTopicComments,
		countsKey: kv.TopicCommentCounts,
		max:       p.retention.MaxTopicCommentCount,
		batchSize: p.batchSizes.PruneTopics,
		unit:      p.pruneTopic,
	})
}

// Notifications deletes the oldest notifications of every user whose log
// exceeds the max.
func (p *Pruner) Notifications(ctx context.Context) (Stats, error) {
	return p.run(ctx, job{
		name:      JobNotifications,
		countsKey: kv.NotificationCounts,
		max:       p.retention.MaxNotificationCount,
		batchSize: p.batchSizes.PruneNotificationUsers,
		unit:      p.pruneNotifications,
	})
}

type unitResult struct {
	id      string
	removed int
	err     error
}

// run visits units in batches, largest first, until none exceeds the max.
// Each unit is pruned at most once per run so a failing or constantly
// refilled unit cannot stall the job.
func (p *Pruner) run(ctx context.Context, j job) (Stats, error) {
	start := time.Now()
	defer func() { p.metrics.ObservePruneRun(j.name, time.Since(start)) }()

	batchSize := max(j.batchSize, 1)
	visited := make(map[string]struct{})

	var stats Stats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Fetch enough candidates to fill a batch past the units already visited
		ids, err := p.overflowing(ctx, j, int64(batchSize+len(visited)))
		if err != nil {
			return stats, err
		}

		batch := make([]string, 0, batchSize)
		for _, id := range ids {
			if _, ok := visited[id]; ok {
				continue
			}
			batch = append(batch, id)
			if len(batch) == batchSize {
				break
			}
		}
		if len(batch) == 0 {
			break
		}

		// Prune the batch concurrently
		workers := pool.NewWithResults[unitResult]().WithMaxGoroutines(p.concurrency)
		for _, id := range batch {
			visited[id] = struct{}{}
			workers.Go(func() unitResult {
				removed, err := j.unit(ctx, id)
				return unitResult{id: id, removed: removed, err: err}
			})
		}

		// Collect results, skipping units that failed
		for _, res := range workers.Wait() {
			p.metrics.ObservePruneUnit(j.name, res.removed, res.err)

			if res.err != nil {
				stats.Skipped++
				p.logger.Error("Failed to prune unit, skipping",
					zap.String("job", j.name),
					zap.String("unit", res.id),
					zap.Error(res.err))
				continue
			}

			stats.Units++
			stats.Removed += res.removed
		}
	}

	p.logger.Info("Pruning run finished",
		zap.String("job", j.name),
		zap.Int("units", stats.Units),
		zap.Int("skipped", stats.Skipped),
		zap.Int("removed", stats.Removed),
		zap.Duration("duration", time.Since(start)))

	return stats, nil
}

// overflowing returns up to limit units whose stored count exceeds the max,
// largest first.
func (p *Pruner) overflowing(ctx context.Context, j job, limit int64) ([]string, error) {
	client := p.store.Client()

	ids, err := client.Do(ctx, client.B().Zrevrangebyscore().Key(j.countsKey).
		Max("+inf").Min("("+strconv.FormatInt(j.max, 10)).
		Limit(0, limit).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s units: %w", j.name, kv.Unavailable(err))
	}

	return ids, nil
}
