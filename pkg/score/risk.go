package score

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidInput is returned when a score cannot be computed from the given input.
var ErrInvalidInput = errors.New("invalid score input")

// RiskParams holds the tunables of the website risk formulas.
type RiskParams struct {
	// Impressions below which a single flag is amplified.
	MinImpressionsForBaseRisk float64
	// Clean impressions after the last flag needed for full healing.
	HealingThresholdImpressions float64
	// Days after the last flag needed for full healing.
	HealingPeriodDays float64
	// Flags older than this many days no longer widen the flag rate window.
	MaxFlagRelevancyDays float64
	// Decay constant of the exponential decay since the last flag, in days.
	DecayHalfLifeDays float64
}

// DefaultRiskParams returns the default risk tunables.
func DefaultRiskParams() RiskParams {
	return RiskParams{
		MinImpressionsForBaseRisk:   100,
		HealingThresholdImpressions: 1000,
		HealingPeriodDays:           30,
		MaxFlagRelevancyDays:        90,
		DecayHalfLifeDays:           30,
	}
}

// BaseRisk calculates the impression-weighted risk of a content source in [0, 100].
// Sources without impressions are not yet eligible for scoring.
func (p RiskParams) BaseRisk(impressions uint64, flagsCumulativeWeight float64, flagCount uint64) (float64, error) {
	if impressions == 0 {
		return 0, fmt.Errorf("%w: zero impressions", ErrInvalidInput)
	}
	if flagsCumulativeWeight < 0 || math.IsNaN(flagsCumulativeWeight) {
		return 0, fmt.Errorf("%w: negative cumulative flag weight", ErrInvalidInput)
	}

	imp := float64(impressions)
	raw := (flagsCumulativeWeight / imp) * 100

	// Frequent flags amplify the score
	raw *= 1 + float64(flagCount)/imp

	// Low-traffic sources are amplified so a single flag is not drowned out
	if p.MinImpressionsForBaseRisk > 0 {
		raw /= math.Min(1, imp/p.MinImpressionsForBaseRisk)
	}

	return clamp(raw, 0, 100), nil
}

// TemporalRisk applies healing, flag rate and time decay to a base risk score.
// The result lies in [0, 100].
func (p RiskParams) TemporalRisk(
	baseRisk float64, flagCount uint64, firstFlagAt, lastFlagAt time.Time,
	impressionsSinceLastFlag uint64, now time.Time,
) float64 {
	daysSinceLast := DaysSince(lastFlagAt, now)

	// Clean impressions over a long enough period heal the score
	healingProgress := 1.0
	if p.HealingThresholdImpressions > 0 {
		healingProgress = math.Min(float64(impressionsSinceLastFlag)/p.HealingThresholdImpressions, 1)
	}
	timeFactor := 1.0
	if p.HealingPeriodDays > 0 {
		timeFactor = math.Min(daysSinceLast/p.HealingPeriodDays, 1)
	}
	healingFactor := 1 - healingProgress*timeFactor

	adjusted := baseRisk * healingFactor

	// Flag rate over the relevant window, never dividing by less than a day
	timespan := math.Min(DaysSince(firstFlagAt, now), p.MaxFlagRelevancyDays)
	if timespan < 1 {
		timespan = 1
	}
	flagsPerDay := float64(flagCount) / timespan

	final := adjusted * math.Log(flagsPerDay+1)

	if p.DecayHalfLifeDays > 0 {
		final *= math.Exp(-daysSinceLast / p.DecayHalfLifeDays)
	}

	return clamp(final, 0, 100)
}

// DaysSince returns the fractional number of days between t and now, never negative.
func DaysSince(t, now time.Time) float64 {
	d := now.Sub(t).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// WebsiteBaseRisk calculates the base risk with the default tunables.
func WebsiteBaseRisk(impressions uint64, flagsCumulativeWeight float64, flagCount uint64) (float64, error) {
	return DefaultRiskParams().BaseRisk(impressions, flagsCumulativeWeight, flagCount)
}

// WebsiteTemporalRisk calculates the temporal risk with the default tunables.
func WebsiteTemporalRisk(
	baseRisk float64, flagCount uint64, firstFlagAt, lastFlagAt time.Time,
	impressionsSinceLastFlag uint64, now time.Time,
) float64 {
	return DefaultRiskParams().TemporalRisk(baseRisk, flagCount, firstFlagAt, lastFlagAt, impressionsSinceLastFlag, now)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
