// Package activity maintains each user's bounded recent-activity log.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/robalyx/marginalia/internal/kv"
	"go.uber.org/zap"
)

// Type is the kind of a recent activity entry.
type Type string

const (
	TypeUpvote   Type = "upvote"
	TypeDownvote Type = "downvote"
	TypeComment  Type = "comment"
	TypeReply    Type = "reply"
)

// Entry is one item of a user's recent activity.
type Entry struct {
	ID         string `json:"id"`
	Type       Type   `json:"type"`
	ItemID     string `json:"itemId"`
	ActivityAt int64  `json:"activityAt"` // Unix milliseconds
}

// NewID returns a fresh activity ID.
func NewID() string {
	return uuid.NewString()
}

// Encode serializes the entry for storage.
func (e Entry) Encode() (string, error) {
	data, err := sonic.MarshalString(e)
	if err != nil {
		return "", fmt.Errorf("failed to encode activity %s: %w", e.ID, err)
	}
	return data, nil
}

// Decode parses a stored entry.
func Decode(data string) (Entry, error) {
	var e Entry
	if err := sonic.UnmarshalString(data, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to decode activity: %w", err)
	}
	return e, nil
}

// WatchKeys returns the keys a transaction touching userID's log must watch.
func WatchKeys(userID string) []string {
	return []string{kv.ActivityKey(userID), kv.ActivityIndexKey(userID)}
}

// QueueAdd queues a new entry and increments the user's stored count.
func QueueAdd(tx *kv.Tx, userID string, e Entry) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}

	tx.Queue(
		tx.B().Hset().Key(kv.ActivityKey(userID)).FieldValue().FieldValue(e.ID, data).Build(),
		tx.B().Zadd().Key(kv.ActivityIndexKey(userID)).ScoreMember().ScoreMember(float64(e.ActivityAt), e.ID).Build(),
		tx.B().Zincrby().Key(kv.RecentActivityCounts).Increment(1).Member(userID).Build(),
	)

	return nil
}

// QueueUpdate queues a rewrite of an existing entry. The caller must have
// checked the entry is still present.
func QueueUpdate(tx *kv.Tx, userID string, e Entry) error {
	data, err := e.Encode()
	if err != nil {
		return err
	}

	tx.Queue(
		tx.B().Hset().Key(kv.ActivityKey(userID)).FieldValue().FieldValue(e.ID, data).Build(),
		tx.B().Zadd().Key(kv.ActivityIndexKey(userID)).Xx().ScoreMember().ScoreMember(float64(e.ActivityAt), e.ID).Build(),
	)

	return nil
}

// QueueRemove queues the removal of an existing entry and decrements the
// user's stored count. The caller must have checked the entry is still present.
func QueueRemove(tx *kv.Tx, userID, activityID string) {
	tx.Queue(
		tx.B().Hdel().Key(kv.ActivityKey(userID)).Field(activityID).Build(),
		tx.B().Zrem().Key(kv.ActivityIndexKey(userID)).Member(activityID).Build(),
		tx.B().Zincrby().Key(kv.RecentActivityCounts).Increment(-1).Member(userID).Build(),
	)
}

// Log reads and appends non-vote activity.
type Log struct {
	store  *kv.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewLog creates an activity log.
func NewLog(store *kv.Store, logger *zap.Logger, now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{
		store:  store,
		logger: logger.Named("activity_log"),
		now:    now,
	}
}

// Record appends an entry of the given type for itemID.
func (l *Log) Record(ctx context.Context, userID string, typ Type, itemID string) (Entry, error) {
	e := Entry{
		ID:         NewID(),
		Type:       typ,
		ItemID:     itemID,
		ActivityAt: l.now().UnixMilli(),
	}

	err := l.store.Transact(ctx, nil, func(_ context.Context, tx *kv.Tx) error {
		return QueueAdd(tx, userID, e)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("failed to record activity: %w", err)
	}

	return e, nil
}

// List returns up to limit of the user's newest entries.
func (l *Log) List(ctx context.Context, userID string, limit int64) ([]Entry, error) {
	client := l.store.Client()

	ids, err := client.Do(ctx, client.B().Zrevrange().Key(kv.ActivityIndexKey(userID)).
		Start(0).Stop(limit-1).Build()).AsStrSlice()
	if err != nil {
		return nil, kv.Unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := client.Do(ctx, client.B().Hmget().Key(kv.ActivityKey(userID)).Field(ids...).Build()).ToArray()
	if err != nil {
		return nil, kv.Unavailable(err)
	}

	entries := make([]Entry, 0, len(values))
	for _, value := range values {
		data, err := value.ToString()
		if err != nil {
			continue
		}

		e, err := Decode(data)
		if err != nil {
			l.logger.Warn("Skipping undecodable activity", zap.String("userID", userID), zap.Error(err))
			continue
		}

		entries = append(entries, e)
	}

	return entries, nil
}

// Count returns the user's stored activity count.
func (l *Log) Count(ctx context.Context, userID string) (int64, error) {
	client := l.store.Client()

	v, err := client.Do(ctx, client.B().Zscore().Key(kv.RecentActivityCounts).Member(userID).Build()).AsFloat64()
	if err != nil {
		if kv.IsNil(err) {
			return 0, nil
		}
		return 0, kv.Unavailable(err)
	}

	return int64(v), nil
}
