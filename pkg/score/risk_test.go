package score_test

import (
	"testing"
	"time"

	"github.com/robalyx/marginalia/pkg/score"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseRisk(t *testing.T) {
	t.Parallel()

	p := score.DefaultRiskParams()

	t.Run("zero impressions is invalid", func(t *testing.T) {
		t.Parallel()

		_, err := p.BaseRisk(0, 3, 1)
		require.ErrorIs(t, err, score.ErrInvalidInput)
	})

	t.Run("formula on established source", func(t *testing.T) {
		t.Parallel()

		// raw = 2/1000*100 = 0.2, amplified by 1 + 1/1000
		got, err := p.BaseRisk(1000, 2, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.2*1.001, got, 1e-9)
	})

	t.Run("low traffic amplifies", func(t *testing.T) {
		t.Parallel()

		// raw = 1/50*100 = 2, * (1 + 1/50) = 2.04, / (50/100) = 4.08
		got, err := p.BaseRisk(50, 1, 1)
		require.NoError(t, err)
		assert.InDelta(t, 4.08, got, 1e-9)
	})

	t.Run("clamped to 100", func(t *testing.T) {
		t.Parallel()

		got, err := p.BaseRisk(1, 30, 10)
		require.NoError(t, err)
		assert.InDelta(t, 100.0, got, 1e-12)
	})

	t.Run("bounded across inputs", func(t *testing.T) {
		t.Parallel()

		for _, imp := range []uint64{1, 10, 99, 100, 1000, 1_000_000} {
			for _, count := range []uint64{0, 1, 10, 1000} {
				got, err := p.BaseRisk(imp, float64(count)*3, count)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got, 0.0)
				assert.LessOrEqual(t, got, 100.0)
			}
		}
	})
}

func TestTemporalRisk(t *testing.T) {
	t.Parallel()

	p := score.DefaultRiskParams()
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	t.Run("bounded across inputs", func(t *testing.T) {
		t.Parallel()

		for _, base := range []float64{0, 1, 50, 100} {
			for _, count := range []uint64{0, 1, 100, 100_000} {
				for _, ago := range []time.Duration{0, day, 30 * day, 400 * day} {
					got := p.TemporalRisk(base, count, now.Add(-ago-day), now.Add(-ago), 10, now)
					assert.GreaterOrEqual(t, got, 0.0)
					assert.LessOrEqual(t, got, 100.0)
				}
			}
		}
	})

	t.Run("fresh flags on same day use one day span", func(t *testing.T) {
		t.Parallel()

		// No healing, no decay, 4 flags per day => 50 * ln(5)
		got := p.TemporalRisk(50, 4, now, now, 0, now)
		assert.InDelta(t, 50*1.6094379124341003, got, 1e-9)
	})

	t.Run("decays with time since last flag", func(t *testing.T) {
		t.Parallel()

		first := now.Add(-60 * day)
		recent := p.TemporalRisk(40, 30, first, now.Add(-1*day), 0, now)
		older := p.TemporalRisk(40, 30, first, now.Add(-10*day), 0, now)
		assert.Greater(t, recent, older)
	})

	t.Run("heals with clean impressions", func(t *testing.T) {
		t.Parallel()

		first := now.Add(-20 * day)
		last := now.Add(-15 * day)
		dirty := p.TemporalRisk(40, 30, first, last, 0, now)
		clean := p.TemporalRisk(40, 30, first, last, 1000, now)
		assert.Greater(t, dirty, clean)
	})

	t.Run("fully healed source scores zero", func(t *testing.T) {
		t.Parallel()

		got := p.TemporalRisk(80, 10, now.Add(-60*day), now.Add(-31*day), 5000, now)
		assert.InDelta(t, 0.0, got, 1e-12)
	})
}

func TestLevelOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  score.RiskLevel
	}{
		{0, score.RiskLevelMinimal},
		{0.99, score.RiskLevelMinimal},
		{1, score.RiskLevelLow},
		{4.99, score.RiskLevelLow},
		{5, score.RiskLevelModerate},
		{19.99, score.RiskLevelModerate},
		{20, score.RiskLevelHigh},
		{49.99, score.RiskLevelHigh},
		{50, score.RiskLevelSevere},
		{100, score.RiskLevelSevere},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, score.LevelOf(tt.score), "score=%v", tt.score)
	}

	assert.True(t, score.RiskLevelLow.IsLow())
	assert.False(t, score.RiskLevelModerate.IsLow())
	assert.Equal(t, "severe", score.RiskLevelSevere.String())
}

func TestFlagReasonWeight(t *testing.T) {
	t.Parallel()

	w, err := score.FlagReasonSpam.Weight()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, w, 1e-12)

	_, err = score.FlagReason("bogus").Weight()
	require.ErrorIs(t, err, score.ErrInvalidInput)
	assert.False(t, score.FlagReason("").Valid())
}

func TestShouldNotify(t *testing.T) {
	t.Parallel()

	for n := uint64(1); n <= 10; n++ {
		assert.True(t, score.ShouldNotify(n), "n=%d", n)
	}

	tests := []struct {
		count uint64
		want  bool
	}{
		{0, false},
		{11, false},
		{15, true},
		{17, false},
		{50, true},
		{60, true},
		{65, false},
		{125, true},
		{130, false},
		{550, true},
		{575, false},
		{1000, true},
		{1100, false},
		{1250, true},
		{5000, true},
		{5250, false},
		{5500, true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, score.ShouldNotify(tt.count), "count=%d", tt.count)
	}
}
