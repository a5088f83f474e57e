// Package vote implements the per-(item, voter) vote state machine and the
// vote counters of each item.
package vote

import (
	"context"
	"fmt"
	"time"

	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/engine/activity"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/engine/notify"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/pkg/score"
	"go.uber.org/zap"
)

// Result describes the outcome of a cast.
type Result struct {
	// Vote is the voter's vote after the cast, nil after a rollback.
	Vote       *Vote
	Transition Transition
	UpDelta    int64
	DownDelta  int64
	Counts     Counts
	Content    *types.Content
	Notified   bool
}

func (r *Result) add(t Type, delta int64) {
	if t == TypeDownvote {
		r.DownDelta += delta
	} else {
		r.UpDelta += delta
	}
}

// Ledger applies vote transitions.
type Ledger struct {
	store    *kv.Store
	contents core.ContentLookup
	emitter  notify.Emitter
	logger   *zap.Logger
	now      func() time.Time
}

// NewLedger creates a vote ledger. A nil emitter disables notifications.
func NewLedger(
	store *kv.Store, contents core.ContentLookup, emitter notify.Emitter, logger *zap.Logger, now func() time.Time,
) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:    store,
		contents: contents,
		emitter:  emitter,
		logger:   logger.Named("vote_ledger"),
		now:      now,
	}
}

// Cast applies a vote of type t by voterID on itemID. Casting the type the
// voter already has rolls the vote back; casting the other type flips it.
//
// Only the voter's own records are watched. The item counters are advanced by
// the counter script inside the same MULTI block, so votes of different users
// on the same item never invalidate each other.
func (l *Ledger) Cast(ctx context.Context, itemID, voterID string, t Type) (*Result, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown vote type %q", core.ErrInvalidInput, string(t))
	}
	if voterID == "" {
		return nil, fmt.Errorf("%w: empty voter id", core.ErrInvalidInput)
	}

	// Votes are only accepted on active content
	content, err := core.LoadAvailable(ctx, l.contents, itemID)
	if err != nil {
		return nil, err
	}

	now := l.now()
	voteKey := kv.VoteKey(itemID, voterID)
	keys := append([]string{voteKey}, activity.WatchKeys(voterID)...)

	var (
		res    *Result
		update counterUpdate
	)

	err = l.store.Transact(ctx, keys, func(ctx context.Context, tx *kv.Tx) error {
		res = &Result{Content: content}

		// Load the voter's current vote, if any
		voteFields, err := tx.HGetAll(ctx, voteKey)
		if err != nil {
			return err
		}

		current, hasVote := parseRecord(voteFields, itemID, voterID)

		switch {
		case !hasVote:
			// Fresh vote with a new activity entry
			rec := Record{ItemID: itemID, VoterID: voterID, Type: t, VotedOn: now, ActivityID: activity.NewID()}
			res.Transition = TransitionCast
			res.Vote = rec.Vote()
			res.add(t, 1)

			queueRecord(tx, voteKey, rec)
			if err := activity.QueueAdd(tx, voterID, rec.Activity()); err != nil {
				return err
			}

		case current.Type == t:
			// Same type again rolls the vote back
			res.Transition = TransitionRollback
			res.add(t, -1)

			tx.Queue(tx.B().Del().Key(voteKey).Build())

			// The entry may already have been pruned from the log
			present, err := tx.HExists(ctx, kv.ActivityKey(voterID), current.ActivityID)
			if err != nil {
				return err
			}
			if present {
				activity.QueueRemove(tx, voterID, current.ActivityID)
			}

		default:
			// Opposite type swings both counters and keeps the activity ID
			rec := current
			rec.Type = t
			rec.VotedOn = now
			res.Transition = TransitionFlip
			res.Vote = rec.Vote()
			res.add(current.Type, -1)
			res.add(t, 1)

			queueRecord(tx, voteKey, rec)

			// Update the entry in place unless it was pruned
			present, err := tx.HExists(ctx, kv.ActivityKey(voterID), rec.ActivityID)
			if err != nil {
				return err
			}
			if present {
				if err := activity.QueueUpdate(tx, voterID, rec.Activity()); err != nil {
					return err
				}
			}
		}

		// Counters, derived scores and topic hot scores commit with the vote
		queueCounters(tx, itemID, content.Topics, res.UpDelta, res.DownDelta, content.CreatedAt, now, &update)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cast vote on %s: %w", itemID, err)
	}

	res.Counts = update.Counts
	res.UpDelta = update.UpDelta
	res.DownDelta = update.DownDelta

	l.logger.Debug("Applied vote",
		zap.String("itemID", itemID),
		zap.String("voterID", voterID),
		zap.String("type", string(t)),
		zap.Stringer("transition", res.Transition),
		zap.Uint64("up", res.Counts.Up),
		zap.Uint64("down", res.Counts.Down))

	// Notifications never roll back the vote
	res.Notified = l.notify(ctx, content, voterID, t, res)

	return res, nil
}

// notify emits an engagement notification to the item's author when the
// throttle approves the new count of the cast type.
func (l *Ledger) notify(ctx context.Context, content *types.Content, voterID string, t Type, res *Result) bool {
	if l.emitter == nil || res.Transition == TransitionRollback || content.AuthorID == voterID {
		return false
	}

	count := res.Counts.Of(t)
	if !score.ShouldNotify(count) {
		return false
	}

	event := notify.EventUpvote
	if t == TypeDownvote {
		event = notify.EventDownvote
	}

	n := notify.Engagement(content, event, count, l.now())

	if err := l.emitter.Emit(ctx, content.AuthorID, n); err != nil {
		l.logger.Error("Failed to emit vote notification",
			zap.String("itemID", content.ID),
			zap.String("recipientID", content.AuthorID),
			zap.Error(err))
		return false
	}

	return true
}

// Get returns the voter's current vote on an item, or nil when there is none.
func (l *Ledger) Get(ctx context.Context, itemID, voterID string) (*Vote, error) {
	fields, err := l.store.HGetAll(ctx, kv.VoteKey(itemID, voterID))
	if err != nil {
		return nil, err
	}

	rec, ok := parseRecord(fields, itemID, voterID)
	if !ok {
		return nil, nil
	}

	return rec.Vote(), nil
}

// Counts returns the vote counters of an item.
func (l *Ledger) Counts(ctx context.Context, itemID string) (Counts, error) {
	fields, err := l.store.HGetAll(ctx, kv.VoteCountKey(itemID))
	if err != nil {
		return Counts{}, err
	}
	return parseCounts(fields), nil
}

func queueRecord(tx *kv.Tx, key string, rec Record) {
	cmd := tx.B().Hset().Key(key).FieldValue()
	for _, f := range rec.fields() {
		cmd = cmd.FieldValue(f[0], f[1])
	}
	tx.Queue(cmd.Build())
}
