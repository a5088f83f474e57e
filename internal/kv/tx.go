package kv

import (
	"context"
	"strconv"

	"github.com/redis/rueidis"
)

// Tx is a single attempt of an optimistic transaction. Reads go straight to the
// store on the watching connection; writes are queued and executed on commit.
type Tx struct {
	conn     rueidis.DedicatedClient
	queued   rueidis.Commands
	handlers []func(rueidis.RedisMessage) error
}

// B returns a command builder.
func (tx *Tx) B() rueidis.Builder {
	return tx.conn.B()
}

// Queue adds write commands to the transaction.
func (tx *Tx) Queue(cmds ...rueidis.Completed) {
	tx.queued = append(tx.queued, cmds...)
	tx.handlers = append(tx.handlers, make([]func(rueidis.RedisMessage) error, len(cmds))...)
}

// QueueFunc adds a write command whose reply is passed to handle once the
// transaction commits. Commands whose values depend on concurrent writers,
// such as unwatched counters, read their post-commit value this way.
func (tx *Tx) QueueFunc(cmd rueidis.Completed, handle func(rueidis.RedisMessage) error) {
	tx.queued = append(tx.queued, cmd)
	tx.handlers = append(tx.handlers, handle)
}

// Queued reports how many write commands are pending.
func (tx *Tx) Queued() int {
	return len(tx.queued)
}

// Do runs a read command immediately.
func (tx *Tx) Do(ctx context.Context, cmd rueidis.Completed) rueidis.RedisResult {
	return tx.conn.Do(ctx, cmd)
}

// HGetAll reads a whole hash. Missing keys yield an empty map.
func (tx *Tx) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := tx.conn.Do(ctx, tx.conn.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, unavailable(err)
	}
	return m, nil
}

// HExists reports whether a hash field exists.
func (tx *Tx) HExists(ctx context.Context, key, field string) (bool, error) {
	ok, err := tx.conn.Do(ctx, tx.conn.B().Hexists().Key(key).Field(field).Build()).AsBool()
	if err != nil {
		return false, unavailable(err)
	}
	return ok, nil
}

// HGet reads a hash field. The second result is false when the field is missing.
func (tx *Tx) HGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := tx.conn.Do(ctx, tx.conn.B().Hget().Key(key).Field(field).Build()).ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return "", false, nil
		}
		return "", false, unavailable(err)
	}
	return v, true, nil
}

// ZScore reads the score of a sorted set member. The second result is false when missing.
func (tx *Tx) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	v, err := tx.conn.Do(ctx, tx.conn.B().Zscore().Key(key).Member(member).Build()).AsFloat64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return 0, false, nil
		}
		return 0, false, unavailable(err)
	}
	return v, true, nil
}

// ZRevRangeWithScores reads members of a sorted set from the highest score down.
func (tx *Tx) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]rueidis.ZScore, error) {
	zs, err := tx.conn.Do(ctx, tx.conn.B().Zrevrange().Key(key).Start(start).Stop(stop).Withscores().Build()).AsZScores()
	if err != nil {
		return nil, unavailable(err)
	}
	return zs, nil
}

// ZRangeWithScores reads members of a sorted set from the lowest score up.
func (tx *Tx) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]rueidis.ZScore, error) {
	zs, err := tx.conn.Do(ctx, tx.conn.B().Zrange().Key(key).
		Min(strconv.FormatInt(start, 10)).Max(strconv.FormatInt(stop, 10)).Withscores().Build()).AsZScores()
	if err != nil {
		return nil, unavailable(err)
	}
	return zs, nil
}
