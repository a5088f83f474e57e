// Package engagement counts bookmarks and replies on content and notifies
// authors on the throttle schedule.
package engagement

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/engine/core"
	"github.com/robalyx/marginalia/internal/engine/notify"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/pkg/score"
	"go.uber.org/zap"
)

const (
	fieldBookmarks = "bookmarks"
	fieldReplies   = "replies"
)

// Counts are the engagement counters of an item.
type Counts struct {
	Bookmarks uint64 `json:"bookmarks"`
	Replies   uint64 `json:"replies"`
}

// Tracker applies bookmark and reply events.
type Tracker struct {
	store    *kv.Store
	contents core.ContentLookup
	emitter  notify.Emitter
	logger   *zap.Logger
	now      func() time.Time
}

// NewTracker creates an engagement tracker. A nil emitter disables notifications.
func NewTracker(
	store *kv.Store, contents core.ContentLookup, emitter notify.Emitter, logger *zap.Logger, now func() time.Time,
) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		store:    store,
		contents: contents,
		emitter:  emitter,
		logger:   logger.Named("engagement"),
		now:      now,
	}
}

// Bookmark marks itemID as bookmarked by userID. Bookmarking twice has no
// effect. It returns whether a new bookmark was added.
func (t *Tracker) Bookmark(ctx context.Context, itemID, userID string) (bool, error) {
	content, count, changed, err := t.toggle(ctx, itemID, userID, true)
	if err != nil || !changed {
		return false, err
	}

	if userID != content.AuthorID && score.ShouldNotify(count) {
		t.emit(ctx, content, notify.Engagement(content, notify.EventBookmark, count, t.now()))
	}

	return true, nil
}

// Unbookmark removes a bookmark. It returns whether a bookmark was removed.
func (t *Tracker) Unbookmark(ctx context.Context, itemID, userID string) (bool, error) {
	_, _, changed, err := t.toggle(ctx, itemID, userID, false)
	return changed, err
}

// bumpScript adds ARGV[2] to the hash field ARGV[1] of KEYS[1] without letting
// it drop below zero, and returns the new value.
const bumpScript = `
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local delta = tonumber(ARGV[2])
if delta < 0 and -delta > current then
	delta = -current
end
if delta ~= 0 then
	current = redis.call('HINCRBY', KEYS[1], ARGV[1], delta)
end
return current
`

// toggle sets or clears the bookmark marker and adjusts the counter in the
// same transaction, returning the resulting count. Only the marker is watched;
// the counter is bumped inside the MULTI block so concurrent bookmarks of
// different users on the same item do not conflict.
func (t *Tracker) toggle(
	ctx context.Context, itemID, userID string, set bool,
) (*types.Content, uint64, bool, error) {
	if userID == "" {
		return nil, 0, false, fmt.Errorf("%w: empty user id", core.ErrInvalidInput)
	}

	content, err := core.LoadAvailable(ctx, t.contents, itemID)
	if err != nil {
		return nil, 0, false, err
	}

	markerKey := kv.BookmarkKey(itemID, userID)
	countKey := kv.EngagementKey(itemID)

	var (
		count   int64
		changed bool
	)

	err = t.store.Transact(ctx, []string{markerKey}, func(ctx context.Context, tx *kv.Tx) error {
		// Check if the user already bookmarked the item
		exists, err := tx.Do(ctx, tx.B().Exists().Key(markerKey).Build()).AsInt64()
		if err != nil {
			return kv.Unavailable(err)
		}

		changed = (exists == 1) != set
		if !changed {
			return nil
		}

		delta := int64(1)
		if set {
			tx.Queue(tx.B().Set().Key(markerKey).Value(core.FormatMillis(t.now())).Build())
		} else {
			delta = -1
			tx.Queue(tx.B().Del().Key(markerKey).Build())
		}

		// Counter moves with the marker, floored at zero
		bump := tx.B().Eval().Script(bumpScript).Numkeys(1).Key(countKey).
			Arg(fieldBookmarks, strconv.FormatInt(delta, 10)).Build()
		tx.QueueFunc(bump, func(msg rueidis.RedisMessage) error {
			v, err := msg.AsInt64()
			if err != nil {
				return fmt.Errorf("failed to decode bookmark count: %w", err)
			}
			count = v
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to update bookmark on %s: %w", itemID, err)
	}

	if !changed {
		// Unchanged toggles report the stored count
		counts, err := t.Counts(ctx, itemID)
		if err != nil {
			return nil, 0, false, err
		}
		return content, counts.Bookmarks, false, nil
	}

	return content, uint64(max(count, 0)), true, nil
}

// RecordReply counts a reply by replierID to parentID and notifies the
// parent's author.
func (t *Tracker) RecordReply(ctx context.Context, parentID, replierID string) (uint64, error) {
	if replierID == "" {
		return 0, fmt.Errorf("%w: empty replier id", core.ErrInvalidInput)
	}

	parent, err := core.LoadAvailable(ctx, t.contents, parentID)
	if err != nil {
		return 0, err
	}

	v, err := t.store.Increment(ctx, kv.EngagementKey(parentID), fieldReplies, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to count reply on %s: %w", parentID, err)
	}
	count := uint64(max(v, 0))

	if replierID != parent.AuthorID && score.ShouldNotify(count) {
		t.emit(ctx, parent, notify.NewUser(notify.UserPayload{
			ActorID: replierID,
			ItemID:  parentID,
			Event:   notify.EventReply,
			Count:   count,
		}, t.now()))
	}

	return count, nil
}

// Counts returns the engagement counters of an item.
func (t *Tracker) Counts(ctx context.Context, itemID string) (Counts, error) {
	fields, err := t.store.HGetAll(ctx, kv.EngagementKey(itemID))
	if err != nil {
		return Counts{}, err
	}

	return Counts{
		Bookmarks: core.ParseUint(fields, fieldBookmarks),
		Replies:   core.ParseUint(fields, fieldReplies),
	}, nil
}

func (t *Tracker) emit(ctx context.Context, content *types.Content, n notify.Notification) {
	if t.emitter == nil {
		return
	}

	if err := t.emitter.Emit(ctx, content.AuthorID, n); err != nil {
		t.logger.Error("Failed to emit engagement notification",
			zap.String("itemID", content.ID),
			zap.String("kind", string(n.Kind)),
			zap.Error(err))
	}
}
