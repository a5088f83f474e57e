package prune

import (
	"context"

	"github.com/robalyx/marginalia/internal/kv"
)

// pruneActivity trims one user's activity log to the stable most recent
// entries and resets the stored count.
func (p *Pruner) pruneActivity(ctx context.Context, userID string) (int, error) {
	return p.trimOldest(ctx, trim{
		hashKey:   kv.ActivityKey(userID),
		indexKey:  kv.ActivityIndexKey(userID),
		countsKey: kv.RecentActivityCounts,
		member:    userID,
		keep:      p.retention.StableRecentActivity,
	})
}

// pruneTopic trims one topic index to the stable hottest comments and resets
// the stored count. The hot score index orders lowest first, so the oldest
// ranks are the coldest comments.
func (p *Pruner) pruneTopic(ctx context.Context, topic string) (int, error) {
	return p.trimOldest(ctx, trim{
		hashKey:   kv.TopicCommentKey(topic),
		indexKey:  kv.TopicHotKey(topic),
		countsKey: kv.TopicCommentCounts,
		member:    topic,
		keep:      p.retention.StableTopicCommentCount,
	})
}

type trim struct {
	hashKey   string
	indexKey  string
	countsKey string
	member    string
	keep      int64
}

// trimOldest removes the lowest-ranked entries of an index and its hash until
// keep remain and rewrites the stored count to the actual size. Every writer
// of the count also writes the index, so watching the index guards the count.
func (p *Pruner) trimOldest(ctx context.Context, t trim) (int, error) {
	var removed int

	err := p.store.Transact(ctx, []string{t.hashKey, t.indexKey}, func(ctx context.Context, tx *kv.Tx) error {
		removed = 0

		// Size the index under watch
		size, err := tx.Do(ctx, tx.B().Zcard().Key(t.indexKey).Build()).AsInt64()
		if err != nil {
			return kv.Unavailable(err)
		}

		excess := size - t.keep
		if excess > 0 {
			stale, err := tx.ZRangeWithScores(ctx, t.indexKey, 0, excess-1)
			if err != nil {
				return err
			}

			// Drop the stale entries from both the hash and the index
			ids := make([]string, len(stale))
			for i, z := range stale {
				ids[i] = z.Member
			}

			tx.Queue(
				tx.B().Hdel().Key(t.hashKey).Field(ids...).Build(),
				tx.B().Zremrangebyrank().Key(t.indexKey).Start(0).Stop(excess-1).Build(),
			)
			removed = len(ids)
		}

		// Rewrite the stored count to the actual size
		remaining := size - int64(removed)
		if remaining <= 0 {
			tx.Queue(tx.B().Zrem().Key(t.countsKey).Member(t.member).Build())
		} else {
			tx.Queue(tx.B().Zadd().Key(t.countsKey).ScoreMember().ScoreMember(float64(remaining), t.member).Build())
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}

// pruneNotifications deletes the oldest count - max + stable notifications
// of one user and decrements the stored count by the number deleted.
func (p *Pruner) pruneNotifications(ctx context.Context, userID string) (int, error) {
	hashKey := kv.NotificationKey(userID)
	indexKey := kv.NotificationIndexKey(userID)

	var removed int

	err := p.store.Transact(ctx, []string{hashKey, indexKey}, func(ctx context.Context, tx *kv.Tx) error {
		removed = 0

		// Check the stored count against the max
		stored, ok, err := tx.ZScore(ctx, kv.NotificationCounts, userID)
		if err != nil {
			return err
		}

		count := int64(stored)
		if !ok || count <= p.retention.MaxNotificationCount {
			return nil
		}

		target := count - p.retention.MaxNotificationCount + p.retention.StableNotificationCount

		oldest, err := tx.ZRangeWithScores(ctx, indexKey, 0, target-1)
		if err != nil {
			return err
		}
		if len(oldest) == 0 {
			// Log vanished, drop the stale count
			tx.Queue(tx.B().Zrem().Key(kv.NotificationCounts).Member(userID).Build())
			return nil
		}

		ids := make([]string, len(oldest))
		for i, z := range oldest {
			ids[i] = z.Member
		}

		// Delete the oldest and decrement the count by what was deleted
		tx.Queue(
			tx.B().Hdel().Key(hashKey).Field(ids...).Build(),
			tx.B().Zrem().Key(indexKey).Member(ids...).Build(),
			tx.B().Zincrby().Key(kv.NotificationCounts).Increment(-float64(len(ids))).Member(userID).Build(),
		)
		removed = len(ids)

		return nil
	})
	if err != nil {
		return 0, err
	}

	return removed, nil
}
