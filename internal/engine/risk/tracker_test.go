package risk_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/engine/risk"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/testutil"
	"github.com/robalyx/marginalia/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func newTracker(t *testing.T, opts ...kv.Option) (*risk.Tracker, *miniredis.Miniredis, *testutil.Ledger) {
	t.Helper()

	store, mr := testutil.NewStore(t, opts...)
	ledger := &testutil.Ledger{}

	return risk.NewTracker(store, ledger, risk.DefaultParams(), zap.NewNop(), testutil.FixedClock(now)), mr, ledger
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// seed writes an aggregate with 10 spam flags over the given episode.
func seed(mr *miniredis.Miniredis, source string, impressions int, weight float64, first, last time.Time) {
	mr.HSet(kv.WebsiteKey(source),
		"flag_distribution", `{"spam":10}`,
		"flags_cumulative_weight", strconv.FormatFloat(weight, 'f', -1, 64),
		"flag_count", "10",
		"first_flag_at", ms(first),
		"last_flag_at", ms(last),
		"impressions", strconv.Itoa(impressions),
		"impressions_since_last_flag", "0",
	)
}

func TestFirstFlag(t *testing.T) {
	t.Parallel()

	tracker, _, ledger := newTracker(t)

	out, err := tracker.Flag(t.Context(), "example.com", "u1", score.FlagReasonScam)
	require.NoError(t, err)

	assert.False(t, out.Churned)
	assert.False(t, out.Prior.Eligible)
	assert.Equal(t, uint64(1), out.Info.FlagCount)
	assert.Equal(t, map[score.FlagReason]uint64{score.FlagReasonScam: 1}, out.Info.FlagDistribution)
	assert.InDelta(t, 2.0, out.Info.FlagsCumulativeWeight, 1e-12)
	assert.Equal(t, now.UnixMilli(), out.Info.FirstFlagAt.UnixMilli())
	assert.Equal(t, now.UnixMilli(), out.Info.LastFlagAt.UnixMilli())

	require.Equal(t, 1, ledger.Len())
	assert.Equal(t, "scam", ledger.Records[0].Reason)
	assert.False(t, ledger.Records[0].Churned)
}

func TestFlagChurnsQuietLowRiskSource(t *testing.T) {
	t.Parallel()

	tracker, mr, ledger := newTracker(t)
	seed(mr, "example.com", 100, 30, now.Add(-60*day), now.Add(-30*day))

	before, err := tracker.Assess(t.Context(), "example.com")
	require.NoError(t, err)
	require.True(t, before.Eligible)
	require.Equal(t, score.RiskLevelLow, before.Level)

	out, err := tracker.Flag(t.Context(), "example.com", "u1", score.FlagReasonHateSpeech)
	require.NoError(t, err)

	assert.True(t, out.Churned)
	assert.Equal(t, uint64(1), out.Info.FlagCount)
	assert.Equal(t, map[score.FlagReason]uint64{score.FlagReasonHateSpeech: 1}, out.Info.FlagDistribution)
	assert.InDelta(t, 3.0, out.Info.FlagsCumulativeWeight, 1e-12)
	assert.Equal(t, now.UnixMilli(), out.Info.FirstFlagAt.UnixMilli())

	assert.Equal(t, "1", mr.HGet(kv.WebsiteKey("example.com"), "flag_count"))
	assert.Equal(t, "100", mr.HGet(kv.WebsiteKey("example.com"), "impressions"))

	require.Equal(t, 1, ledger.Len())
	assert.True(t, ledger.Records[0].Churned)
}

func TestFlagAccumulates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		impressions int
		weight      float64
		last        time.Time
	}{
		{name: "quiet for less than the churn window", impressions: 100, weight: 30, last: now.Add(-29 * day)},
		{name: "high risk source", impressions: 100, weight: 300, last: now.Add(-30 * day)},
		{name: "no impressions yet", impressions: 0, weight: 30, last: now.Add(-45 * day)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tracker, mr, _ := newTracker(t)
			first := now.Add(-60 * day)
			seed(mr, "example.com", tt.impressions, tt.weight, first, tt.last)

			out, err := tracker.Flag(t.Context(), "example.com", "u1", score.FlagReasonHateSpeech)
			require.NoError(t, err)

			assert.False(t, out.Churned)
			assert.Equal(t, uint64(11), out.Info.FlagCount)
			assert.Equal(t, map[score.FlagReason]uint64{
				score.FlagReasonSpam:       10,
				score.FlagReasonHateSpeech: 1,
			}, out.Info.FlagDistribution)
			assert.InDelta(t, tt.weight+3, out.Info.FlagsCumulativeWeight, 1e-9)
			assert.Equal(t, first.UnixMilli(), out.Info.FirstFlagAt.UnixMilli())
			assert.Equal(t, now.UnixMilli(), out.Info.LastFlagAt.UnixMilli())
		})
	}
}

func TestFlagRejectsUnknownReason(t *testing.T) {
	t.Parallel()

	tracker, mr, ledger := newTracker(t)

	_, err := tracker.Flag(t.Context(), "example.com", "u1", score.FlagReason("boring"))
	require.ErrorIs(t, err, core.ErrInvalidInput)
	assert.False(t, mr.Exists(kv.WebsiteKey("example.com")))
	assert.Equal(t, 0, ledger.Len())
}

func TestImpressionsHealAndReset(t *testing.T) {
	t.Parallel()

	tracker, mr, _ := newTracker(t)
	ctx := t.Context()

	_, err := tracker.Flag(ctx, "example.com", "u1", score.FlagReasonSpam)
	require.NoError(t, err)

	for range 3 {
		require.NoError(t, tracker.RecordImpression(ctx, "example.com"))
	}

	key := kv.WebsiteKey("example.com")
	assert.Equal(t, "3", mr.HGet(key, "impressions"))
	assert.Equal(t, "3", mr.HGet(key, "impressions_since_last_flag"))

	_, err = tracker.Flag(ctx, "example.com", "u2", score.FlagReasonSpam)
	require.NoError(t, err)

	assert.Equal(t, "3", mr.HGet(key, "impressions"))
	assert.Equal(t, "0", mr.HGet(key, "impressions_since_last_flag"))
	assert.Equal(t, "2", mr.HGet(key, "flag_count"))
}

func TestAssess(t *testing.T) {
	t.Parallel()

	t.Run("unknown source is not eligible", func(t *testing.T) {
		t.Parallel()

		tracker, _, _ := newTracker(t)

		a, err := tracker.Assess(t.Context(), "unknown.org")
		require.NoError(t, err)
		assert.False(t, a.Eligible)
		assert.Equal(t, score.RiskLevelMinimal, a.Level)
	})

	t.Run("flagged source is bounded", func(t *testing.T) {
		t.Parallel()

		tracker, mr, _ := newTracker(t)
		seed(mr, "example.com", 5, 500, now.Add(-2*day), now)

		a, err := tracker.Assess(t.Context(), "example.com")
		require.NoError(t, err)
		assert.True(t, a.Eligible)
		assert.InDelta(t, 100.0, a.BaseRisk, 1e-9)
		assert.LessOrEqual(t, a.TemporalRisk, 100.0)
		assert.GreaterOrEqual(t, a.TemporalRisk, 0.0)
		assert.Equal(t, score.RiskLevelSevere, a.Level)
	})
}

func TestCorruptDistributionIsReported(t *testing.T) {
	t.Parallel()

	tracker, mr, ledger := newTracker(t)

	seed(mr, "example.com", 100, 10, now.Add(-2*day), now.Add(-day))
	mr.HSet(kv.WebsiteKey("example.com"), "flag_distribution", "{spam")

	_, err := tracker.Assess(t.Context(), "example.com")
	require.ErrorIs(t, err, core.ErrStorageUnavailable)

	// The stored breakdown is left for repair instead of being overwritten
	_, err = tracker.Flag(t.Context(), "example.com", "u1", score.FlagReasonSpam)
	require.ErrorIs(t, err, core.ErrStorageUnavailable)
	assert.Equal(t, "{spam", mr.HGet(kv.WebsiteKey("example.com"), "flag_distribution"))
	assert.Equal(t, 0, ledger.Len())
}

func TestConcurrentFlagsAreNotLost(t *testing.T) {
	t.Parallel()

	// All flags rewrite the same source info, so the retry budget is raised
	tracker, _, ledger := newTracker(t, kv.WithMaxAttempts(200))

	const flags = 10

	done := make(chan error)
	for i := range flags {
		go func() {
			_, err := tracker.Flag(t.Context(), "example.com", "u"+strconv.Itoa(i), score.FlagReasonSpam)
			done <- err
		}()
	}
	for range flags {
		require.NoError(t, <-done)
	}

	a, err := tracker.Assess(t.Context(), "example.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(flags), a.Info.FlagCount)
	assert.Equal(t, uint64(flags), a.Info.FlagDistribution[score.FlagReasonSpam])
	assert.Equal(t, flags, ledger.Len())
}
