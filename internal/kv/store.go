package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts is how many times a transaction is attempted before giving up.
	DefaultMaxAttempts = 8

	// DefaultConflictDelay is the first wait after a lost transaction.
	DefaultConflictDelay = 2 * time.Millisecond
	// DefaultMaxConflictDelay caps the wait between attempts.
	DefaultMaxConflictDelay = 50 * time.Millisecond
)

var (
	// ErrTransientConflict is returned when an optimistic transaction keeps losing
	// to concurrent writers. The caller should retry the whole operation.
	ErrTransientConflict = errors.New("transaction conflict retries exhausted")
	// ErrStorageUnavailable is returned when the store cannot be reached or rejects a command.
	ErrStorageUnavailable = errors.New("storage unavailable")

	errWatchConflict = errors.New("watched key changed")
)

// Store exposes the two mutation primitives of the realtime store:
// atomic counter increments and optimistic read-compute-write transactions.
type Store struct {
	client           rueidis.Client
	maxAttempts      int
	conflictDelay    time.Duration
	maxConflictDelay time.Duration
	logger           *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts overrides the number of transaction attempts.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithConflictDelay overrides the initial and maximum wait between attempts.
func WithConflictDelay(initial, maxDelay time.Duration) Option {
	return func(s *Store) {
		if initial > 0 && maxDelay >= initial {
			s.conflictDelay = initial
			s.maxConflictDelay = maxDelay
		}
	}
}

// New creates a store on top of a rueidis client.
func New(client rueidis.Client, logger *zap.Logger, opts ...Option) *Store {
	s := &Store{
		client:           client,
		maxAttempts:      DefaultMaxAttempts,
		conflictDelay:    DefaultConflictDelay,
		maxConflictDelay: DefaultMaxConflictDelay,
		logger:           logger.Named("kv_store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client returns the underlying rueidis client for plain reads.
func (s *Store) Client() rueidis.Client {
	return s.client
}

// Increment atomically adds delta to a hash field and returns the new value.
func (s *Store) Increment(ctx context.Context, key, field string, delta int64) (int64, error) {
	v, err := s.client.Do(ctx, s.client.B().Hincrby().Key(key).Field(field).Increment(delta).Build()).AsInt64()
	if err != nil {
		return 0, unavailable(err)
	}
	return v, nil
}

// IncrementMany atomically adds several deltas to fields of the same hash.
// The increments are applied in a single MULTI/EXEC block.
func (s *Store) IncrementMany(ctx context.Context, key string, deltas map[string]int64) error {
	if len(deltas) == 0 {
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(deltas)+2)
	cmds = append(cmds, s.client.B().Multi().Build())
	for field, delta := range deltas {
		cmds = append(cmds, s.client.B().Hincrby().Key(key).Field(field).Increment(delta).Build())
	}
	cmds = append(cmds, s.client.B().Exec().Build())

	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return unavailable(err)
		}
	}
	return nil
}

// Transact runs fn inside an optimistic transaction watching keys. Reads done
// through the Tx observe the latest committed state; writes queued on the Tx are
// applied atomically with MULTI/EXEC only if none of the watched keys changed
// since they were watched. On conflict fn is run again from scratch after a
// short jittered delay, up to the configured number of attempts.
func (s *Store) Transact(ctx context.Context, keys []string, fn func(ctx context.Context, tx *Tx) error) error {
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.conflictDelay),
		backoff.WithMaxInterval(s.maxConflictDelay),
		backoff.WithMaxElapsedTime(0),
	), uint64(s.maxAttempts-1))

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++

		err := s.client.Dedicated(func(conn rueidis.DedicatedClient) error {
			return s.attempt(ctx, conn, keys, fn)
		})
		if errors.Is(err, errWatchConflict) {
			s.logger.Debug("Transaction conflict, retrying",
				zap.Strings("keys", keys),
				zap.Int("attempt", attempt))
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if !errors.Is(err, errWatchConflict) {
		return err
	}

	s.logger.Warn("Transaction retries exhausted",
		zap.Strings("keys", keys),
		zap.Int("attempts", attempt))

	return fmt.Errorf("%w: %v", ErrTransientConflict, keys)
}

// attempt runs a single WATCH/read/MULTI/EXEC round on a dedicated connection.
func (s *Store) attempt(
	ctx context.Context, conn rueidis.DedicatedClient, keys []string, fn func(ctx context.Context, tx *Tx) error,
) error {
	if len(keys) > 0 {
		if err := conn.Do(ctx, conn.B().Watch().Key(keys...).Build()).Error(); err != nil {
			return unavailable(err)
		}
	}

	tx := &Tx{conn: conn}
	if err := fn(ctx, tx); err != nil {
		conn.Do(ctx, conn.B().Unwatch().Build())
		return err
	}

	if len(tx.queued) == 0 {
		conn.Do(ctx, conn.B().Unwatch().Build())
		return nil
	}

	cmds := make(rueidis.Commands, 0, len(tx.queued)+2)
	cmds = append(cmds, conn.B().Multi().Build())
	cmds = append(cmds, tx.queued...)
	cmds = append(cmds, conn.B().Exec().Build())

	resps := conn.DoMulti(ctx, cmds...)
	for _, resp := range resps[:len(resps)-1] {
		if err := resp.Error(); err != nil {
			return unavailable(err)
		}
	}

	exec := resps[len(resps)-1]
	if err := exec.Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return errWatchConflict
		}
		return unavailable(err)
	}

	results, err := exec.ToArray()
	if err != nil {
		return unavailable(err)
	}
	for _, result := range results {
		if err := result.Error(); err != nil && !rueidis.IsRedisNil(err) {
			return unavailable(err)
		}
	}

	// Hand committed replies back to their callers
	for i, handle := range tx.handlers {
		if handle == nil || i >= len(results) {
			continue
		}
		if err := handle(results[i]); err != nil {
			return err
		}
	}

	return nil
}

// Unavailable tags an error returned by the store client as a storage failure.
// Context cancellation is passed through unchanged.
func Unavailable(err error) error {
	return unavailable(err)
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

// HGetAll reads a whole hash outside of a transaction. Missing keys yield an empty map.
func (s *Store) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	m, err := s.client.Do(ctx, s.client.B().Hgetall().Key(key).Build()).AsStrMap()
	if err != nil {
		return nil, unavailable(err)
	}
	return m, nil
}

// IsNil reports whether err is a missing key or field reply.
func IsNil(err error) bool {
	return rueidis.IsRedisNil(err)
}
