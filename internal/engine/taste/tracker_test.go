package taste_test

import (
	"testing"
	"time"

	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/engine/taste"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/testutil"
	"github.com/robalyx/marginalia/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTracker(t *testing.T, threshold float64) (*taste.Tracker, *testutil.Contents) {
	t.Helper()

	store, _ := testutil.NewStore(t)
	contents := testutil.NewContents(
		testutil.Comment("c1", "author", time.Now(), "science", "space"),
	)

	return taste.NewTracker(store, contents, threshold, zap.NewNop()), contents
}

func TestApplyVoteUpdatesEveryTopic(t *testing.T) {
	t.Parallel()

	tracker, _ := newTracker(t, 0.01)

	require.NoError(t, tracker.ApplyVote(t.Context(), "u1", []string{"science", "space"}, 1, 0))

	for _, topic := range []string{"science", "space"} {
		got, err := tracker.Get(t.Context(), "u1", topic)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), got.Upvotes)
		assert.InDelta(t, score.TopicTaste(1, 0, 0), got.Score, 1e-12)
	}
}

func TestApplyVoteFlipAndRollback(t *testing.T) {
	t.Parallel()

	tracker, _ := newTracker(t, 0.01)
	ctx := t.Context()
	topics := []string{"science"}

	require.NoError(t, tracker.ApplyVote(ctx, "u1", topics, 1, 0))
	require.NoError(t, tracker.ApplyVote(ctx, "u1", topics, -1, 1))

	got, err := tracker.Get(ctx, "u1", "science")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Upvotes)
	assert.Equal(t, uint64(1), got.Downvotes)
	assert.InDelta(t, score.TopicTaste(0, 1, 0), got.Score, 1e-12)

	require.NoError(t, tracker.ApplyVote(ctx, "u1", topics, 0, -1))

	got, err = tracker.Get(ctx, "u1", "science")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Downvotes)
	assert.InDelta(t, 0.0, got.Score, 1e-12)
}

func TestScoreWriteSuppressedBelowThreshold(t *testing.T) {
	t.Parallel()

	// At ten upvotes each further upvote moves the score by less than 0.05
	tracker, _ := newTracker(t, 0.05)
	ctx := t.Context()
	topics := []string{"science"}

	for range 10 {
		require.NoError(t, tracker.ApplyVote(ctx, "u1", topics, 1, 0))
	}

	before, err := tracker.Get(ctx, "u1", "science")
	require.NoError(t, err)

	require.NoError(t, tracker.ApplyVote(ctx, "u1", topics, 1, 0))

	after, err := tracker.Get(ctx, "u1", "science")
	require.NoError(t, err)
	assert.Equal(t, uint64(11), after.Upvotes)
	assert.InDelta(t, before.Score, after.Score, 0)
	assert.Greater(t, score.TopicTaste(11, 0, 0), after.Score)
}

func TestNotInterested(t *testing.T) {
	t.Parallel()

	tracker, _ := newTracker(t, 0.01)
	ctx := t.Context()

	require.NoError(t, tracker.ApplyVote(ctx, "u1", []string{"science"}, 1, 0))
	require.NoError(t, tracker.NotInterested(ctx, "c1", "u1"))

	science, err := tracker.Get(ctx, "u1", "science")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), science.NotInterested)
	assert.Less(t, science.Score, score.TopicTaste(1, 0, 0))

	space, err := tracker.Get(ctx, "u1", "space")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), space.NotInterested)
	assert.Negative(t, space.Score)
}

func TestNotInterestedUnavailableContent(t *testing.T) {
	t.Parallel()

	tracker, _ := newTracker(t, 0.01)

	err := tracker.NotInterested(t.Context(), "missing", "u1")
	require.ErrorIs(t, err, core.ErrContentUnavailable)
}

func TestApplyVoteConcurrent(t *testing.T) {
	t.Parallel()

	// All writers share one (user, topic) record, so the retry budget is raised
	store, _ := testutil.NewStore(t, kv.WithMaxAttempts(200))
	tracker := taste.NewTracker(store, testutil.NewContents(), 0.01, zap.NewNop())

	done := make(chan error)
	for range 10 {
		go func() {
			done <- tracker.ApplyVote(t.Context(), "u1", []string{"science"}, 1, 0)
		}()
	}
	for range 10 {
		require.NoError(t, <-done)
	}

	got, err := tracker.Get(t.Context(), "u1", "science")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.Upvotes)
}
