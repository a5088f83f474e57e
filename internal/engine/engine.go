// Package engine is the entry point for engagement events. It routes each
// event to the component owning the affected aggregates and records metrics
// and trace spans around it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/engine/activity"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/engine/engagement"
	"github.com/robalyx/marginalia/internal/engine/notify"
	"github.com/robalyx/marginalia/internal/engine/risk"
	"github.com/robalyx/marginalia/internal/engine/taste"
	"github.com/robalyx/marginalia/internal/engine/topic"
	"github.com/robalyx/marginalia/internal/engine/vote"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/internal/metrics"
	"github.com/robalyx/marginalia/internal/setup/config"
	"github.com/robalyx/marginalia/pkg/score"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/robalyx/marginalia/internal/engine"

// Options configures the engine.
type Options struct {
	Store    *kv.Store
	Contents core.ContentLookup
	// Ledger receives every flag. Optional.
	Ledger core.FlagLedger
	// Emitter receives throttled notifications. Defaults to the notification log in Store.
	Emitter notify.Emitter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time

	Risk           risk.Params
	TasteThreshold float64
}

// Engine applies engagement events.
type Engine struct {
	votes         *vote.Ledger
	tastes        *taste.Tracker
	risk          *risk.Tracker
	engagement    *engagement.Tracker
	topics        *topic.Index
	activity      *activity.Log
	notifications *notify.Log
	contents      core.ContentLookup
	metrics       *metrics.Metrics
	tracer        trace.Tracer
	logger        *zap.Logger
}

// New wires the engine components over a shared store.
func New(opts Options) *Engine {
	logger := opts.Logger.Named("engine")

	notifications := notify.NewLog(opts.Store, logger)

	var emitter notify.Emitter = notifications
	if opts.Emitter != nil {
		emitter = opts.Emitter
	}
	emitter = &meteredEmitter{next: emitter, metrics: opts.Metrics}

	return &Engine{
		votes:         vote.NewLedger(opts.Store, opts.Contents, emitter, logger, opts.Now),
		tastes:        taste.NewTracker(opts.Store, opts.Contents, opts.TasteThreshold, logger),
		risk:          risk.NewTracker(opts.Store, opts.Ledger, opts.Risk, logger, opts.Now),
		engagement:    engagement.NewTracker(opts.Store, opts.Contents, emitter, logger, opts.Now),
		topics:        topic.NewIndex(opts.Store, logger, opts.Now),
		activity:      activity.NewLog(opts.Store, logger, opts.Now),
		notifications: notifications,
		contents:      opts.Contents,
		metrics:       opts.Metrics,
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
	}
}

// RiskParams converts the scoring configuration into risk tunables.
func RiskParams(cfg *config.Scoring) risk.Params {
	return risk.Params{
		RiskParams: score.RiskParams{
			MinImpressionsForBaseRisk:   cfg.MinImpressionsForBaseRisk,
			HealingThresholdImpressions: cfg.HealingThresholdImpressions,
			HealingPeriodDays:           cfg.HealingPeriodDays,
			MaxFlagRelevancyDays:        cfg.MaxFlagRelevancyDays,
			DecayHalfLifeDays:           cfg.DecayHalfLifeDays,
		},
		MaxDaysBeforeChurn: cfg.MaxDaysBeforeChurn,
	}
}

// CastVote applies a vote click and moves the voter's taste in the content's
// topics by the counter deltas. It returns the voter's vote after the click,
// nil when the click rolled the vote back.
func (e *Engine) CastVote(ctx context.Context, itemID, voterID string, t vote.Type) (v *vote.Vote, err error) {
	ctx, done := e.start(ctx, "vote",
		attribute.String("item.id", itemID),
		attribute.String("vote.type", string(t)))
	defer func() { done(err) }()

	res, err := e.votes.Cast(ctx, itemID, voterID, t)
	if err != nil {
		return nil, err
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("vote.transition", res.Transition.String()))

	// The vote is committed at this point. Taste is a secondary signal, so a
	// failure is logged rather than failing the click.
	if err := e.tastes.ApplyVote(ctx, voterID, res.Content.Topics, res.UpDelta, res.DownDelta); err != nil {
		e.logger.Error("Failed to apply vote to taste",
			zap.String("itemID", itemID),
			zap.String("voterID", voterID),
			zap.Error(err))
	}

	return res.Vote, nil
}

// FlagSource records a flag against a content source.
func (e *Engine) FlagSource(
	ctx context.Context, sourceID, flaggerID string, reason score.FlagReason,
) (out *risk.FlagOutcome, err error) {
	ctx, done := e.start(ctx, "flag",
		attribute.String("source.id", sourceID),
		attribute.String("flag.reason", string(reason)))
	defer func() { done(err) }()

	out, err = e.risk.Flag(ctx, sourceID, flaggerID, reason)
	if err != nil {
		return nil, err
	}

	if out.Churned {
		e.metrics.IncChurn()
	}

	return out, nil
}

// NotInterested records that a user does not want content like itemID.
func (e *Engine) NotInterested(ctx context.Context, itemID, userID string) (err error) {
	ctx, done := e.start(ctx, "not_interested", attribute.String("item.id", itemID))
	defer func() { done(err) }()

	return e.tastes.NotInterested(ctx, itemID, userID)
}

// RecordImpression counts a view of a content source.
func (e *Engine) RecordImpression(ctx context.Context, sourceID string) (err error) {
	ctx, done := e.start(ctx, "impression", attribute.String("source.id", sourceID))
	defer func() { done(err) }()

	return e.risk.RecordImpression(ctx, sourceID)
}

// AssessSource returns the current risk of a content source.
func (e *Engine) AssessSource(ctx context.Context, sourceID string) (a risk.Assessment, err error) {
	ctx, done := e.start(ctx, "assess", attribute.String("source.id", sourceID))
	defer func() { done(err) }()

	return e.risk.Assess(ctx, sourceID)
}

// Bookmark adds a bookmark. It reports whether the bookmark is new.
func (e *Engine) Bookmark(ctx context.Context, itemID, userID string) (added bool, err error) {
	ctx, done := e.start(ctx, "bookmark", attribute.String("item.id", itemID))
	defer func() { done(err) }()

	return e.engagement.Bookmark(ctx, itemID, userID)
}

// Unbookmark removes a bookmark. It reports whether one was removed.
func (e *Engine) Unbookmark(ctx context.Context, itemID, userID string) (removed bool, err error) {
	ctx, done := e.start(ctx, "unbookmark", attribute.String("item.id", itemID))
	defer func() { done(err) }()

	return e.engagement.Unbookmark(ctx, itemID, userID)
}

// RecordReply counts a reply on parentID and notifies the parent's author. It
// returns the parent's reply count.
func (e *Engine) RecordReply(ctx context.Context, parentID, replierID string) (count uint64, err error) {
	ctx, done := e.start(ctx, "reply", attribute.String("item.id", parentID))
	defer func() { done(err) }()

	return e.engagement.RecordReply(ctx, parentID, replierID)
}

// IndexContent publishes new content: comments enter their topic indexes and
// the author's recent activity gets a comment or reply entry.
func (e *Engine) IndexContent(ctx context.Context, itemID string) (err error) {
	ctx, done := e.start(ctx, "index", attribute.String("item.id", itemID))
	defer func() { done(err) }()

	content, err := core.LoadAvailable(ctx, e.contents, itemID)
	if err != nil {
		return err
	}

	typ := activity.TypeComment
	if content.Kind == types.ContentKindReply {
		typ = activity.TypeReply
	} else {
		counts, err := e.votes.Counts(ctx, itemID)
		if err != nil {
			return err
		}
		if err := e.topics.Add(ctx, content, content.Topics, counts.Up, counts.Down); err != nil {
			return fmt.Errorf("failed to index %s: %w", itemID, err)
		}
	}

	if _, err := e.activity.Record(ctx, content.AuthorID, typ, itemID); err != nil {
		return err
	}

	return nil
}

// RemoveContent drops deleted or removed content from its topic indexes.
// Votes and activity entries stay until pruned.
func (e *Engine) RemoveContent(ctx context.Context, itemID string) (err error) {
	ctx, done := e.start(ctx, "remove", attribute.String("item.id", itemID))
	defer func() { done(err) }()

	content, err := e.contents.GetContent(ctx, itemID)
	if err != nil {
		if errors.Is(err, types.ErrContentNotFound) {
			return fmt.Errorf("%w: %s", ErrContentUnavailable, itemID)
		}
		return err
	}

	return e.topics.Remove(ctx, itemID, content.Topics)
}

// RetopicContent moves a comment from its previous topics to the topics it
// is classified into now.
func (e *Engine) RetopicContent(ctx context.Context, itemID string, previous []string) (err error) {
	ctx, done := e.start(ctx, "retopic", attribute.String("item.id", itemID))
	defer func() { done(err) }()

	content, err := core.LoadAvailable(ctx, e.contents, itemID)
	if err != nil {
		return err
	}

	counts, err := e.votes.Counts(ctx, itemID)
	if err != nil {
		return err
	}

	return e.topics.Retopic(ctx, content, previous, counts.Up, counts.Down)
}

// Vote returns a voter's current vote on an item, nil when there is none.
func (e *Engine) Vote(ctx context.Context, itemID, voterID string) (*vote.Vote, error) {
	return e.votes.Get(ctx, itemID, voterID)
}

// VoteCounts returns the vote counters and derived scores of an item.
func (e *Engine) VoteCounts(ctx context.Context, itemID string) (vote.Counts, error) {
	return e.votes.Counts(ctx, itemID)
}

// EngagementCounts returns the bookmark and reply counters of an item.
func (e *Engine) EngagementCounts(ctx context.Context, itemID string) (engagement.Counts, error) {
	return e.engagement.Counts(ctx, itemID)
}

// Taste returns a user's affinity for a topic.
func (e *Engine) Taste(ctx context.Context, userID, topicName string) (taste.Taste, error) {
	return e.tastes.Get(ctx, userID, topicName)
}

// TopComments returns the hottest comments of a topic.
func (e *Engine) TopComments(ctx context.Context, topicName string, limit int64) ([]topic.FlatComment, error) {
	return e.topics.Top(ctx, topicName, limit)
}

// RecentActivity returns a user's newest activity entries.
func (e *Engine) RecentActivity(ctx context.Context, userID string, limit int64) ([]activity.Entry, error) {
	return e.activity.List(ctx, userID, limit)
}

// Notifications returns a user's newest notifications from the notification log.
func (e *Engine) Notifications(ctx context.Context, userID string, limit int64) ([]notify.Notification, error) {
	return e.notifications.List(ctx, userID, limit)
}

// start opens a span for an event. The returned function ends it and records
// the outcome.
func (e *Engine) start(ctx context.Context, event string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	began := time.Now()
	ctx, span := e.tracer.Start(ctx, "engine."+event, trace.WithAttributes(attrs...))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.logger.Debug("Event failed", zap.String("event", event), zap.Error(err))
		}
		span.End()
		e.metrics.ObserveEvent(event, err, time.Since(began))
	}
}

// meteredEmitter counts delivered notifications.
type meteredEmitter struct {
	next    notify.Emitter
	metrics *metrics.Metrics
}

func (m *meteredEmitter) Emit(ctx context.Context, recipientID string, n notify.Notification) error {
	if err := m.next.Emit(ctx, recipientID, n); err != nil {
		return err
	}
	m.metrics.IncNotification(string(n.Kind))
	return nil
}
