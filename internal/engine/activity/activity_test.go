package activity_test

import (
	"context"
	"testing"
	"time"

	"github.com/robalyx/marginalia/internal/engine/activity"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRecordAndList(t *testing.T) {
	t.Parallel()

	store, _ := testutil.NewStore(t)
	start := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	current := start
	log := activity.NewLog(store, zap.NewNop(), func() time.Time { return current })
	ctx := t.Context()

	var ids []string
	for i, typ := range []activity.Type{activity.TypeComment, activity.TypeReply, activity.TypeComment} {
		current = start.Add(time.Duration(i) * time.Second)
		e, err := log.Record(ctx, "u1", typ, "item")
		require.NoError(t, err)
		ids = append(ids, e.ID)
	}

	entries, err := log.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ids[2], entries[0].ID)
	assert.Equal(t, ids[0], entries[2].ID)
	assert.Equal(t, activity.TypeReply, entries[1].Type)

	count, err := log.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestQueueUpdateAndRemove(t *testing.T) {
	t.Parallel()

	store, mr := testutil.NewStore(t)
	log := activity.NewLog(store, zap.NewNop(), nil)
	ctx := t.Context()

	e, err := log.Record(ctx, "u1", activity.TypeUpvote, "item")
	require.NoError(t, err)

	e.Type = activity.TypeDownvote
	err = store.Transact(ctx, activity.WatchKeys("u1"), func(_ context.Context, tx *kv.Tx) error {
		return activity.QueueUpdate(tx, "u1", e)
	})
	require.NoError(t, err)

	entries, err := log.List(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, activity.TypeDownvote, entries[0].Type)

	err = store.Transact(ctx, activity.WatchKeys("u1"), func(_ context.Context, tx *kv.Tx) error {
		activity.QueueRemove(tx, "u1", e.ID)
		return nil
	})
	require.NoError(t, err)

	count, err := log.Count(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.False(t, mr.Exists(kv.ActivityKey("u1")))
}

func TestCountOfUnknownUser(t *testing.T) {
	t.Parallel()

	store, _ := testutil.NewStore(t)
	log := activity.NewLog(store, zap.NewNop(), nil)

	count, err := log.Count(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)

	entries, err := log.List(t.Context(), "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
