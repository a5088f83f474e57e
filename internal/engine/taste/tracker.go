// Package taste tracks each user's affinity for the topics they engage with.
package taste

import (
	"context"
	"fmt"
	"math"

	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/pkg/score"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	fieldUpvotes       = "upvotes"
	fieldDownvotes     = "downvotes"
	fieldNotInterested = "not_interested"
	fieldScore         = "score"
)

// Taste is a user's aggregate for one topic. Score is the last persisted
// score and may lag the counters by up to the delta threshold.
type Taste struct {
	UserID        string  `json:"userId"`
	Topic         string  `json:"topic"`
	Upvotes       uint64  `json:"upvotes"`
	Downvotes     uint64  `json:"downvotes"`
	NotInterested uint64  `json:"notInterested"`
	Score         float64 `json:"score"`
}

// Delta is a change of the taste counters.
type Delta struct {
	Upvotes       int64
	Downvotes     int64
	NotInterested int64
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Upvotes == 0 && d.Downvotes == 0 && d.NotInterested == 0
}

// Tracker updates topic tastes.
type Tracker struct {
	store     *kv.Store
	contents  core.ContentLookup
	threshold float64
	logger    *zap.Logger
}

// NewTracker creates a taste tracker. Recomputed scores are only persisted
// when they moved by more than threshold.
func NewTracker(store *kv.Store, contents core.ContentLookup, threshold float64, logger *zap.Logger) *Tracker {
	return &Tracker{
		store:     store,
		contents:  contents,
		threshold: threshold,
		logger:    logger.Named("taste_tracker"),
	}
}

// ApplyVote adjusts the user's up/down counters in each topic.
func (t *Tracker) ApplyVote(ctx context.Context, userID string, topics []string, upDelta, downDelta int64) error {
	return t.applyAll(ctx, userID, topics, Delta{Upvotes: upDelta, Downvotes: downDelta})
}

// NotInterested records that the user does not want content like itemID.
func (t *Tracker) NotInterested(ctx context.Context, itemID, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", core.ErrInvalidInput)
	}

	content, err := core.LoadAvailable(ctx, t.contents, itemID)
	if err != nil {
		return err
	}

	return t.applyAll(ctx, userID, content.Topics, Delta{NotInterested: 1})
}

// applyAll updates every topic concurrently. Topics are independent records.
func (t *Tracker) applyAll(ctx context.Context, userID string, topics []string, delta Delta) error {
	if delta.IsZero() || len(topics) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		g.Go(func() error {
			_, err := t.apply(ctx, userID, topic, delta)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to update taste of %s: %w", userID, err)
	}

	return nil
}

// apply advances the counters of one (user, topic) and persists the new score
// when it crossed the threshold. It returns the resulting aggregate.
func (t *Tracker) apply(ctx context.Context, userID, topic string, delta Delta) (Taste, error) {
	key := kv.TasteKey(userID, topic)

	var result Taste

	err := t.store.Transact(ctx, []string{key}, func(ctx context.Context, tx *kv.Tx) error {
		fields, err := tx.HGetAll(ctx, key)
		if err != nil {
			return err
		}

		// Advance the counters, floored at zero
		old := parse(userID, topic, fields)
		result = old
		result.Upvotes = advance(old.Upvotes, delta.Upvotes)
		result.Downvotes = advance(old.Downvotes, delta.Downvotes)
		result.NotInterested = advance(old.NotInterested, delta.NotInterested)

		queueIncrement(tx, key, fieldUpvotes, int64(result.Upvotes)-int64(old.Upvotes))
		queueIncrement(tx, key, fieldDownvotes, int64(result.Downvotes)-int64(old.Downvotes))
		queueIncrement(tx, key, fieldNotInterested, int64(result.NotInterested)-int64(old.NotInterested))

		// Persist the score only when it moved past the threshold
		newScore := score.TopicTaste(result.Upvotes, result.Downvotes, result.NotInterested)
		if math.Abs(newScore-old.Score) > t.threshold {
			result.Score = newScore
			tx.Queue(tx.B().Hset().Key(key).FieldValue().FieldValue(fieldScore, core.FormatFloat(newScore)).Build())
		}

		return nil
	})
	if err != nil {
		return Taste{}, err
	}

	return result, nil
}

// Get returns the user's taste for a topic.
func (t *Tracker) Get(ctx context.Context, userID, topic string) (Taste, error) {
	fields, err := t.store.HGetAll(ctx, kv.TasteKey(userID, topic))
	if err != nil {
		return Taste{}, err
	}
	return parse(userID, topic, fields), nil
}

func parse(userID, topic string, fields map[string]string) Taste {
	return Taste{
		UserID:        userID,
		Topic:         topic,
		Upvotes:       core.ParseUint(fields, fieldUpvotes),
		Downvotes:     core.ParseUint(fields, fieldDownvotes),
		NotInterested: core.ParseUint(fields, fieldNotInterested),
		Score:         core.ParseFloat(fields, fieldScore),
	}
}

func queueIncrement(tx *kv.Tx, key, field string, delta int64) {
	if delta != 0 {
		tx.Queue(tx.B().Hincrby().Key(key).Field(field).Increment(delta).Build())
	}
}

// advance applies a delta to a counter without going below zero.
func advance(current uint64, delta int64) uint64 {
	if delta < 0 && uint64(-delta) > current {
		return 0
	}
	return uint64(int64(current) + delta)
}
