// Package risk aggregates flags against content sources and scores how
// harmful each source currently is.
package risk

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/pkg/score"
	"go.uber.org/zap"
)

// Params are the risk tunables.
type Params struct {
	score.RiskParams
	// Days without flags after which a low-risk source starts a fresh episode.
	MaxDaysBeforeChurn float64
}

// DefaultParams returns the default risk tunables.
func DefaultParams() Params {
	return Params{RiskParams: score.DefaultRiskParams(), MaxDaysBeforeChurn: 30}
}

// Assessment is the current risk of a source.
type Assessment struct {
	Info         Info            `json:"info"`
	Eligible     bool            `json:"eligible"`
	BaseRisk     float64         `json:"baseRisk"`
	TemporalRisk float64         `json:"temporalRisk"`
	Level        score.RiskLevel `json:"level"`
}

// FlagOutcome describes how a flag changed a source's aggregate.
type FlagOutcome struct {
	// Prior is the risk computed from the aggregate before the flag.
	Prior   Assessment `json:"prior"`
	Info    Info       `json:"info"`
	Churned bool       `json:"churned"`
}

// Tracker applies flags and impressions to source aggregates.
type Tracker struct {
	store  *kv.Store
	ledger core.FlagLedger
	params Params
	logger *zap.Logger
	now    func() time.Time
}

// NewTracker creates a risk tracker. A nil ledger skips the absolute flag ledger.
func NewTracker(store *kv.Store, ledger core.FlagLedger, params Params, logger *zap.Logger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:  store,
		ledger: ledger,
		params: params,
		logger: logger.Named("risk_tracker"),
		now:    now,
	}
}

// Flag records a flag with the given reason against a source.
func (t *Tracker) Flag(ctx context.Context, sourceID, flaggerID string, reason score.FlagReason) (*FlagOutcome, error) {
	weight, err := reason.Weight()
	if err != nil {
		return nil, err
	}
	if sourceID == "" || flaggerID == "" {
		return nil, fmt.Errorf("%w: empty source or flagger id", core.ErrInvalidInput)
	}

	now := t.now()
	key := kv.WebsiteKey(sourceID)

	var outcome *FlagOutcome

	err = t.store.Transact(ctx, []string{key}, func(ctx context.Context, tx *kv.Tx) error {
		// Load the current aggregate of the source
		fields, err := tx.HGetAll(ctx, key)
		if err != nil {
			return err
		}

		info, err := parseInfo(sourceID, fields)
		if err != nil {
			return err
		}

		prior := t.assess(info, now)
		next := prior.Info
		next.FlagDistribution = maps.Clone(prior.Info.FlagDistribution)

		churn := prior.Eligible && prior.Level.IsLow() &&
			score.DaysSince(prior.Info.LastFlagAt, now) >= t.params.MaxDaysBeforeChurn

		// Churned or unflagged sources start a fresh episode
		if churn || !prior.Info.Flagged() {
			next.FlagCount = 1
			next.FlagDistribution = map[score.FlagReason]uint64{reason: 1}
			next.FlagsCumulativeWeight = weight
			next.FirstFlagAt = now
		} else {
			next.FlagCount++
			next.FlagDistribution[reason]++
			next.FlagsCumulativeWeight += weight
		}
		next.LastFlagAt = now
		next.ImpressionsSinceLastFlag = 0

		// Rewrite the aggregate in one HSET
		writes, err := next.flagFields()
		if err != nil {
			return fmt.Errorf("failed to encode flag aggregate: %w", err)
		}

		cmd := tx.B().Hset().Key(key).FieldValue()
		for _, f := range writes {
			cmd = cmd.FieldValue(f[0], f[1])
		}
		tx.Queue(cmd.Build())

		outcome = &FlagOutcome{Prior: prior, Info: next, Churned: churn}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to flag source %s: %w", sourceID, err)
	}

	if outcome.Churned {
		t.logger.Info("Started fresh flag episode",
			zap.String("sourceID", sourceID),
			zap.Float64("priorTemporalRisk", outcome.Prior.TemporalRisk),
			zap.Time("priorLastFlagAt", outcome.Prior.Info.LastFlagAt))
	}

	t.appendLedger(ctx, sourceID, flaggerID, reason, weight, outcome.Churned, now)

	return outcome, nil
}

// appendLedger writes the flag to the absolute ledger. The aggregate is
// already committed at this point so failures are logged, not returned.
func (t *Tracker) appendLedger(
	ctx context.Context, sourceID, flaggerID string, reason score.FlagReason, weight float64, churned bool, now time.Time,
) {
	if t.ledger == nil {
		return
	}

	err := t.ledger.RecordFlag(ctx, &types.FlagRecord{
		SourceID:  sourceID,
		FlaggerID: flaggerID,
		Reason:    string(reason),
		Weight:    weight,
		Churned:   churned,
		FlaggedAt: now,
	})
	if err != nil {
		t.logger.Error("Failed to append flag to ledger",
			zap.String("sourceID", sourceID),
			zap.String("flaggerID", flaggerID),
			zap.Error(err))
	}
}

// RecordImpression counts a page impression of a source.
func (t *Tracker) RecordImpression(ctx context.Context, sourceID string) error {
	if sourceID == "" {
		return fmt.Errorf("%w: empty source id", core.ErrInvalidInput)
	}

	err := t.store.IncrementMany(ctx, kv.WebsiteKey(sourceID), map[string]int64{
		fieldImpressions:   1,
		fieldSinceLastFlag: 1,
	})
	if err != nil {
		return fmt.Errorf("failed to record impression of %s: %w", sourceID, err)
	}

	return nil
}

// Assess returns the current risk of a source.
func (t *Tracker) Assess(ctx context.Context, sourceID string) (Assessment, error) {
	fields, err := t.store.HGetAll(ctx, kv.WebsiteKey(sourceID))
	if err != nil {
		return Assessment{}, err
	}

	info, err := parseInfo(sourceID, fields)
	if err != nil {
		return Assessment{}, err
	}

	return t.assess(info, t.now()), nil
}

// assess scores a snapshot. Sources without flags or impressions are not
// eligible and report a zero score.
func (t *Tracker) assess(info Info, now time.Time) Assessment {
	a := Assessment{Info: info, Level: score.RiskLevelMinimal}
	if !info.Eligible() {
		return a
	}

	base, err := t.params.BaseRisk(info.Impressions, info.FlagsCumulativeWeight, info.FlagCount)
	if err != nil {
		return a
	}

	a.Eligible = true
	a.BaseRisk = base
	a.TemporalRisk = t.params.TemporalRisk(
		base, info.FlagCount, info.FirstFlagAt, info.LastFlagAt, info.ImpressionsSinceLastFlag, now,
	)
	a.Level = score.LevelOf(a.TemporalRisk)

	return a
}
