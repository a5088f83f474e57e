// Package core holds the errors and collaborator interfaces shared by the
// engine components.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robalyx/marginalia/internal/database/types"
	"github.com/robalyx/marginalia/internal/kv"
	"github.com/robalyx/marginalia/pkg/score"
)

var (
	// ErrContentUnavailable is returned for engagement on deleted, removed or unknown content.
	ErrContentUnavailable = errors.New("content unavailable")
	// ErrInvalidInput is returned before any write when an input cannot be scored.
	ErrInvalidInput = score.ErrInvalidInput
	// ErrTransientConflict is returned when an optimistic transaction exhausted its retries.
	ErrTransientConflict = kv.ErrTransientConflict
	// ErrStorageUnavailable is returned when the realtime store cannot be reached.
	ErrStorageUnavailable = kv.ErrStorageUnavailable
)

// ContentLookup reads content metadata from the document store.
type ContentLookup interface {
	GetContent(ctx context.Context, id string) (*types.Content, error)
}

// FlagLedger appends flags to the absolute flag ledger.
type FlagLedger interface {
	RecordFlag(ctx context.Context, record *types.FlagRecord) error
}

// Clock returns the current time.
type Clock func() time.Time

// LoadAvailable fetches content and fails with ErrContentUnavailable unless it is active.
func LoadAvailable(ctx context.Context, lookup ContentLookup, id string) (*types.Content, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty content id", ErrInvalidInput)
	}

	content, err := lookup.GetContent(ctx, id)
	if err != nil {
		if errors.Is(err, types.ErrContentNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrContentUnavailable, id)
		}
		return nil, fmt.Errorf("failed to load content %s: %w", id, err)
	}

	if !content.Available() {
		return nil, fmt.Errorf("%w: %s is %s", ErrContentUnavailable, id, content.Status)
	}

	return content, nil
}
