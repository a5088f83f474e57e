// Package topic maintains the per-topic flat comment index ranked by hot score.
package topic

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bytedance/sonic"
	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/pkg/score"
	"go.uber.org/zap"
)

// FlatComment is the indexed view of a comment within a topic.
type FlatComment struct {
	CommentID string  `json:"-"`
	AuthorID  string  `json:"author"`
	SourceRef string  `json:"sourceRef"`
	HotScore  float64 `json:"-"`
}

// Index reads and writes topic comment indexes.
type Index struct {
	store  *kv.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewIndex creates a topic index.
func NewIndex(store *kv.Store, logger *zap.Logger, now func() time.Time) *Index {
	if now == nil {
		now = time.Now
	}
	return &Index{
		store:  store,
		logger: logger.Named("topic_index"),
		now:    now,
	}
}

// Add indexes content into each of the given topics with its current vote counts.
func (x *Index) Add(ctx context.Context, content *types.Content, topics []string, up, down uint64) error {
	if len(topics) == 0 {
		return nil
	}

	data, err := sonic.MarshalString(FlatComment{AuthorID: content.AuthorID, SourceRef: content.SourceRef})
	if err != nil {
		return fmt.Errorf("failed to encode topic comment: %w", err)
	}

	hot := score.Hot(up, down, content.CreatedAt.UnixMilli(), x.now())

	return x.store.Transact(ctx, watchKeys(topics), func(ctx context.Context, tx *kv.Tx) error {
		for _, t := range topics {
			// Only new members bump the topic count
			exists, err := tx.HExists(ctx, kv.TopicCommentKey(t), content.ID)
			if err != nil {
				return err
			}

			tx.Queue(
				tx.B().Hset().Key(kv.TopicCommentKey(t)).FieldValue().FieldValue(content.ID, data).Build(),
				tx.B().Zadd().Key(kv.TopicHotKey(t)).ScoreMember().ScoreMember(hot, content.ID).Build(),
			)
			if !exists {
				tx.Queue(tx.B().Zincrby().Key(kv.TopicCommentCounts).Increment(1).Member(t).Build())
			}
		}
		return nil
	})
}

// Remove drops a comment from each of the given topics.
func (x *Index) Remove(ctx context.Context, commentID string, topics []string) error {
	if len(topics) == 0 {
		return nil
	}

	return x.store.Transact(ctx, watchKeys(topics), func(ctx context.Context, tx *kv.Tx) error {
		for _, t := range topics {
			exists, err := tx.HExists(ctx, kv.TopicCommentKey(t), commentID)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}

			tx.Queue(
				tx.B().Hdel().Key(kv.TopicCommentKey(t)).Field(commentID).Build(),
				tx.B().Zrem().Key(kv.TopicHotKey(t)).Member(commentID).Build(),
				tx.B().Zincrby().Key(kv.TopicCommentCounts).Increment(-1).Member(t).Build(),
			)
		}
		return nil
	})
}

// Retopic moves a comment from its previous topics to its new ones.
func (x *Index) Retopic(ctx context.Context, content *types.Content, previous []string, up, down uint64) error {
	var removed, added []string

	for _, t := range previous {
		if !content.HasTopic(t) {
			removed = append(removed, t)
		}
	}
	for _, t := range content.Topics {
		if !slices.Contains(previous, t) {
			added = append(added, t)
		}
	}

	if err := x.Remove(ctx, content.ID, removed); err != nil {
		return fmt.Errorf("failed to remove from previous topics: %w", err)
	}

	if err := x.Add(ctx, content, added, up, down); err != nil {
		return fmt.Errorf("failed to add to new topics: %w", err)
	}

	x.logger.Debug("Updated comment topics",
		zap.String("commentID", content.ID),
		zap.Strings("removed", removed),
		zap.Strings("added", added))

	return nil
}

// Top returns up to limit comments of a topic from the hottest down.
func (x *Index) Top(ctx context.Context, topic string, limit int64) ([]FlatComment, error) {
	client := x.store.Client()

	ranked, err := client.Do(ctx, client.B().Zrevrange().Key(kv.TopicHotKey(topic)).
		Start(0).Stop(limit-1).Withscores().Build()).AsZScores()
	if err != nil {
		return nil, kv.Unavailable(err)
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	// Resolve the ranked IDs to their stored comments
	ids := make([]string, len(ranked))
	for i, z := range ranked {
		ids[i] = z.Member
	}

	values, err := client.Do(ctx, client.B().Hmget().Key(kv.TopicCommentKey(topic)).Field(ids...).Build()).ToArray()
	if err != nil {
		return nil, kv.Unavailable(err)
	}

	comments := make([]FlatComment, 0, len(ranked))
	for i, value := range values {
		data, err := value.ToString()
		if err != nil {
			// Pruned between the two reads
			continue
		}

		var c FlatComment
		if err := sonic.UnmarshalString(data, &c); err != nil {
			x.logger.Warn("Skipping undecodable topic comment", zap.String("topic", topic), zap.Error(err))
			continue
		}

		c.CommentID = ranked[i].Member
		c.HotScore = ranked[i].Score
		comments = append(comments, c)
	}

	return comments, nil
}

// Count returns the stored comment count of a topic.
func (x *Index) Count(ctx context.Context, topic string) (int64, error) {
	client := x.store.Client()

	v, err := client.Do(ctx, client.B().Zscore().Key(kv.TopicCommentCounts).Member(topic).Build()).AsFloat64()
	if err != nil {
		if kv.IsNil(err) {
			return 0, nil
		}
		return 0, kv.Unavailable(err)
	}

	return int64(v), nil
}

func watchKeys(topics []string) []string {
	keys := make([]string, 0, len(topics))
	for _, t := range topics {
		keys = append(keys, kv.TopicCommentKey(t))
	}
	return keys
}
