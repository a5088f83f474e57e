// Package testutil provides shared fixtures for engine and worker tests.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/engine/notify"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// NewStore starts a miniredis server and returns a store connected to it.
// Both are closed when the test ends.
func NewStore(t *testing.T, opts ...kv.Option) (*kv.Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:       []string{mr.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return kv.New(client, zap.NewNop(), opts...), mr
}

// FixedClock returns a clock that always reports now.
func FixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

// Contents is an in-memory content lookup.
type Contents struct {
	mu    sync.RWMutex
	items map[string]*types.Content
}

// NewContents creates a lookup holding the given content.
func NewContents(items ...*types.Content) *Contents {
	c := &Contents{items: make(map[string]*types.Content)}
	for _, item := range items {
		c.Put(item)
	}
	return c
}

// Put adds or replaces content.
func (c *Contents) Put(content *types.Content) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[content.ID] = content
}

// GetContent implements the engine's content lookup.
func (c *Contents) GetContent(_ context.Context, id string) (*types.Content, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	content, ok := c.items[id]
	if !ok {
		return nil, types.ErrContentNotFound
	}

	clone := *content
	return &clone, nil
}

// Comment builds an active comment.
func Comment(id, author string, createdAt time.Time, topics ...string) *types.Content {
	return &types.Content{
		ID:        id,
		AuthorID:  author,
		Kind:      types.ContentKindComment,
		SourceID:  "example.com",
		SourceRef: "https://example.com/article#" + id,
		Topics:    topics,
		Status:    types.ContentStatusActive,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// Ledger records appended flags in memory.
type Ledger struct {
	mu      sync.Mutex
	Records []*types.FlagRecord
}

// RecordFlag implements the engine's flag ledger.
func (l *Ledger) RecordFlag(_ context.Context, record *types.FlagRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Records = append(l.Records, record)
	return nil
}

// Len returns the number of recorded flags.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Records)
}

// Delivery is a notification captured by Emitter.
type Delivery struct {
	RecipientID  string
	Notification notify.Notification
}

// Emitter captures emitted notifications.
type Emitter struct {
	mu         sync.Mutex
	Deliveries []Delivery
}

// Emit implements notify.Emitter.
func (e *Emitter) Emit(_ context.Context, recipientID string, n notify.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.Deliveries = append(e.Deliveries, Delivery{RecipientID: recipientID, Notification: n})
	return nil
}

// Len returns the number of captured notifications.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.Deliveries)
}

// Last returns the most recent delivery.
func (e *Emitter) Last() Delivery {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Deliveries[len(e.Deliveries)-1]
}
