// Package notify delivers throttled engagement notifications into a bounded
// per-user notification log.
package notify

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/robalyx/marginalia/internal/kv"
	"go.uber.org/zap"
)

// Emitter receives notifications approved by the throttle.
type Emitter interface {
	Emit(ctx context.Context, recipientID string, n Notification) error
}

// Log stores notifications per user: a hash of encoded notifications, an
// index ordered by creation time and the user's count in the global
// notification counts set used by the pruner.
type Log struct {
	store  *kv.Store
	logger *zap.Logger
}

// NewLog creates a notification log.
func NewLog(store *kv.Store, logger *zap.Logger) *Log {
	return &Log{
		store:  store,
		logger: logger.Named("notification_log"),
	}
}

// Emit appends a notification to the recipient's log.
func (l *Log) Emit(ctx context.Context, recipientID string, n Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	data, err := sonic.MarshalString(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	// Store, index and count the notification together
	err = l.store.Transact(ctx, nil, func(_ context.Context, tx *kv.Tx) error {
		tx.Queue(
			tx.B().Hset().Key(kv.NotificationKey(recipientID)).FieldValue().FieldValue(n.ID, data).Build(),
			tx.B().Zadd().Key(kv.NotificationIndexKey(recipientID)).ScoreMember().
				ScoreMember(float64(n.CreatedAt.UnixMilli()), n.ID).Build(),
			tx.B().Zincrby().Key(kv.NotificationCounts).Increment(1).Member(recipientID).Build(),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	l.logger.Debug("Stored notification",
		zap.String("recipientID", recipientID),
		zap.String("notificationID", n.ID),
		zap.String("kind", string(n.Kind)))

	return nil
}

// List returns up to limit of the user's newest notifications.
func (l *Log) List(ctx context.Context, userID string, limit int64) ([]Notification, error) {
	client := l.store.Client()

	ids, err := client.Do(ctx, client.B().Zrevrange().Key(kv.NotificationIndexKey(userID)).
		Start(0).Stop(limit-1).Build()).AsStrSlice()
	if err != nil {
		return nil, kv.Unavailable(err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	values, err := client.Do(ctx, client.B().Hmget().Key(kv.NotificationKey(userID)).Field(ids...).Build()).ToArray()
	if err != nil {
		return nil, kv.Unavailable(err)
	}

	notifications := make([]Notification, 0, len(values))
	for i, value := range values {
		data, err := value.ToString()
		if err != nil {
			// Removed between the two reads
			continue
		}

		var n Notification
		if err := sonic.UnmarshalString(data, &n); err != nil {
			l.logger.Warn("Skipping undecodable notification",
				zap.String("userID", userID),
				zap.String("notificationID", ids[i]),
				zap.Error(err))
			continue
		}

		notifications = append(notifications, n)
	}

	return notifications, nil
}

// Count returns the user's stored notification count.
func (l *Log) Count(ctx context.Context, userID string) (int64, error) {
	client := l.store.Client()

	v, err := client.Do(ctx, client.B().Zscore().Key(kv.NotificationCounts).Member(userID).Build()).AsFloat64()
	if err != nil {
		if kv.IsNil(err) {
			return 0, nil
		}
		return 0, kv.Unavailable(err)
	}

	return int64(v), nil
}
