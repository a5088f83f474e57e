package prune_test

import (
	"context"
	"testing"
	"time"

	"github.com/robalyx/marginalia/internal/engine/activity"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/robalyx/marginalia/internal/worker/core"
	"github.com/robalyx/marginalia/internal/worker/prune"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorkerPrunesAndReportsStatus(t *testing.T) {
	t.Parallel()

	pruner, store, _ := newPruner(t, config.Retention{
		MaxRecentActivity: 10, StableRecentActivity: 5,
		MaxTopicCommentCount: 10, StableTopicCommentCount: 5,
		MaxNotificationCount: 10, StableNotificationCount: 5,
	}, 10)
	seedActivity(t, store, "user", 15)

	worker := prune.NewWorker(pruner, store.Client(), config.Intervals{
		RecentActivity: 60, TopicComments: 60, Notifications: 60,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Start(ctx)
	}()

	log := activity.NewLog(store, zap.NewNop(), nil)
	require.Eventually(t, func() bool {
		count, err := log.Count(t.Context(), "user")
		return err == nil && count == 5
	}, 5*time.Second, 10*time.Millisecond)

	monitor := core.NewMonitor(store.Client(), zap.NewNop())
	require.Eventually(t, func() bool {
		statuses, err := monitor.GetAllStatuses(t.Context())
		return err == nil && len(statuses) == 1
	}, 5*time.Second, 10*time.Millisecond)

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "prune", statuses[0].WorkerType)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}
}
