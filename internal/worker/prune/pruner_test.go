package prune_test

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/robalyx/marginalia/internal/engine/activity"
	"github.com/robalyx/marginalia/internal/engine/notify"
	"github.com/robalyx/marginalia/internal/engine/vote"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/robalyx/marginalia/internal/testutil"
	"github.com/robalyx/marginalia/internal/worker/prune"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var base = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func newPruner(t *testing.T, retention config.Retention, batch int) (*prune.Pruner, *kv.Store, *miniredis.Miniredis) {
	t.Helper()

	store, mr := testutil.NewStore(t)
	sizes := config.BatchSizes{
		PruneActivityUsers:     batch,
		PruneTopics:            batch,
		PruneNotificationUsers: batch,
		PruneConcurrency:       4,
	}

	return prune.NewPruner(store, retention, sizes, nil, zap.NewNop()), store, mr
}

func seedActivity(t *testing.T, store *kv.Store, userID string, n int) {
	t.Helper()

	err := store.Transact(t.Context(), nil, func(_ context.Context, tx *kv.Tx) error {
		for i := range n {
			err := activity.QueueAdd(tx, userID, activity.Entry{
				ID:         fmt.Sprintf("%s-%04d", userID, i),
				Type:       activity.TypeComment,
				ItemID:     "item",
				ActivityAt: base.Add(time.Duration(i) * time.Second).UnixMilli(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestRecentActivityKeepsMostRecent(t *testing.T) {
	t.Parallel()

	pruner, store, mr := newPruner(t, config.Retention{MaxRecentActivity: 1000, StableRecentActivity: 800}, 10)
	seedActivity(t, store, "heavy", 1005)
	seedActivity(t, store, "light", 20)

	stats, err := pruner.RecentActivity(t.Context())
	require.NoError(t, err)
	assert.Equal(t, prune.Stats{Units: 1, Removed: 205}, stats)

	log := activity.NewLog(store, zap.NewNop(), nil)

	count, err := log.Count(t.Context(), "heavy")
	require.NoError(t, err)
	assert.Equal(t, int64(800), count)

	entries, err := log.List(t.Context(), "heavy", 1000)
	require.NoError(t, err)
	require.Len(t, entries, 800)
	assert.Equal(t, "heavy-1004", entries[0].ID)
	assert.Equal(t, "heavy-0205", entries[len(entries)-1].ID)

	fields, err := mr.HKeys(kv.ActivityKey("heavy"))
	require.NoError(t, err)
	assert.Len(t, fields, 800)

	count, err = log.Count(t.Context(), "light")
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)
}

func TestRecentActivityRacesVoteRollback(t *testing.T) {
	t.Parallel()

	pruner, store, mr := newPruner(t, config.Retention{MaxRecentActivity: 10, StableRecentActivity: 5}, 10)
	contents := testutil.NewContents(testutil.Comment("c1", "author", base.Add(-2*time.Hour)))
	ledger := vote.NewLedger(store, contents, nil, zap.NewNop(), testutil.FixedClock(base.Add(-time.Hour)))
	log := activity.NewLog(store, zap.NewNop(), nil)

	for i := range 10 {
		voter := "voter-" + strconv.Itoa(i)

		// The vote is the voter's oldest entry, so a prune removes it first
		res, err := ledger.Cast(t.Context(), "c1", voter, vote.TypeUpvote)
		require.NoError(t, err)
		activityID := res.Vote.ActivityID
		seedActivity(t, store, voter, 12)

		var g errgroup.Group
		g.Go(func() error {
			_, err := pruner.RecentActivity(t.Context())
			return err
		})
		g.Go(func() error {
			_, err := ledger.Cast(t.Context(), "c1", voter, vote.TypeUpvote)
			return err
		})
		require.NoError(t, g.Wait())

		// Either order leaves the newest stable entries and no trace of the vote
		count, err := log.Count(t.Context(), voter)
		require.NoError(t, err)
		assert.Equal(t, int64(5), count)
		fields, err := mr.HKeys(kv.ActivityKey(voter))
		require.NoError(t, err)
		assert.Len(t, fields, 5)
		assert.False(t, mr.Exists(kv.VoteKey("c1", voter)))
		assert.Empty(t, mr.HGet(kv.ActivityKey(voter), activityID))

		recorded, err := mr.ZScore(kv.RecentActivityCounts, voter)
		require.NoError(t, err)
		assert.InDelta(t, 5.0, recorded, 0)

		entries, err := log.List(t.Context(), voter, 10)
		require.NoError(t, err)
		require.Len(t, entries, 5)
		assert.Equal(t, voter+"-0011", entries[0].ID)
		assert.Equal(t, voter+"-0007", entries[4].ID)
	}

	counts, err := ledger.Counts(t.Context(), "c1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), counts.Up)
}

func TestRecentActivityProcessesAllBatches(t *testing.T) {
	t.Parallel()

	pruner, store, _ := newPruner(t, config.Retention{MaxRecentActivity: 10, StableRecentActivity: 5}, 2)
	for i := range 5 {
		seedActivity(t, store, "user"+strconv.Itoa(i), 11+i)
	}

	stats, err := pruner.RecentActivity(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Units)
	assert.Equal(t, 6+7+8+9+10, stats.Removed)

	// A second run finds nothing to do
	stats, err = pruner.RecentActivity(t.Context())
	require.NoError(t, err)
	assert.Equal(t, prune.Stats{}, stats)
}

func TestFailingUnitIsSkipped(t *testing.T) {
	t.Parallel()

	pruner, store, mr := newPruner(t, config.Retention{MaxRecentActivity: 10, StableRecentActivity: 5}, 1)
	seedActivity(t, store, "ok", 12)

	// A corrupt unit: counted as overflowing but its index is not a sorted set
	_, err := mr.ZAdd(kv.RecentActivityCounts, 50, "broken")
	require.NoError(t, err)
	require.NoError(t, mr.Set(kv.ActivityIndexKey("broken"), "garbage"))

	stats, err := pruner.RecentActivity(t.Context())
	require.NoError(t, err)
	assert.Equal(t, prune.Stats{Units: 1, Skipped: 1, Removed: 7}, stats)

	score, err := mr.ZScore(kv.RecentActivityCounts, "ok")
	require.NoError(t, err)
	assert.InDelta(t, 5, score, 0)
}

func TestTopicCommentsKeepHottest(t *testing.T) {
	t.Parallel()

	pruner, store, mr := newPruner(t, config.Retention{MaxTopicCommentCount: 5, StableTopicCommentCount: 3}, 10)

	err := store.Transact(t.Context(), nil, func(_ context.Context, tx *kv.Tx) error {
		for i := range 8 {
			id := "c" + strconv.Itoa(i)
			tx.Queue(
				tx.B().Hset().Key(kv.TopicCommentKey("go")).FieldValue().FieldValue(id, `{"author":"a"}`).Build(),
				tx.B().Zadd().Key(kv.TopicHotKey("go")).ScoreMember().ScoreMember(float64(i), id).Build(),
				tx.B().Zincrby().Key(kv.TopicCommentCounts).Increment(1).Member("go").Build(),
			)
		}
		return nil
	})
	require.NoError(t, err)

	stats, err := pruner.TopicComments(t.Context())
	require.NoError(t, err)
	assert.Equal(t, prune.Stats{Units: 1, Removed: 5}, stats)

	members, err := mr.ZMembers(kv.TopicHotKey("go"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c5", "c6", "c7"}, members)

	fields, err := mr.HKeys(kv.TopicCommentKey("go"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c5", "c6", "c7"}, fields)

	score, err := mr.ZScore(kv.TopicCommentCounts, "go")
	require.NoError(t, err)
	assert.InDelta(t, 3, score, 0)
}

func TestNotificationsDeleteOldest(t *testing.T) {
	t.Parallel()

	pruner, store, mr := newPruner(t, config.Retention{MaxNotificationCount: 5, StableNotificationCount: 2}, 10)
	log := notify.NewLog(store, zap.NewNop())

	var ids []string
	for i := range 7 {
		n := notify.NewUser(notify.UserPayload{ActorID: "u", ItemID: "c1", Event: notify.EventReply, Count: uint64(i + 1)},
			base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, log.Emit(t.Context(), "author", n))
		ids = append(ids, n.ID)
	}

	// 7 - 5 + 2 = 4 oldest are deleted
	stats, err := pruner.Notifications(t.Context())
	require.NoError(t, err)
	assert.Equal(t, prune.Stats{Units: 1, Removed: 4}, stats)

	count, err := log.Count(t.Context(), "author")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	members, err := mr.ZMembers(kv.NotificationIndexKey("author"))
	require.NoError(t, err)
	assert.ElementsMatch(t, ids[4:], members)
}

func TestRunUnknownJob(t *testing.T) {
	t.Parallel()

	pruner, _, _ := newPruner(t, config.Default().Worker.Retention, 10)

	_, err := pruner.Run(t.Context(), "bogus")
	require.Error(t, err)
}
