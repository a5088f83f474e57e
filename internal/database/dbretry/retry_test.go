package dbretry_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/robalyx/marginalia/internal/database/dbretry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errReset    = errors.New("read tcp 10.0.0.1:5432: connection reset by peer")
	errNotFound = errors.New("row not found")
)

func TestMain(m *testing.M) {
	dbretry.SetPolicy(dbretry.Policy{
		MaxElapsedTime:  time.Second,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxRetries:      3,
	})
	os.Exit(m.Run())
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "connection reset", err: errReset, want: true},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "logical error", err: errNotFound, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, dbretry.IsRetryableError(tt.err))
		})
	}
}

func TestOperation(t *testing.T) {
	t.Parallel()

	t.Run("retries transient errors", func(t *testing.T) {
		t.Parallel()

		calls := 0
		got, err := dbretry.Operation(t.Context(), func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, errReset
			}
			return 42, nil
		})

		require.NoError(t, err)
		assert.Equal(t, 42, got)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent errors", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := dbretry.NoResult(t.Context(), func(context.Context) error {
			calls++
			return errNotFound
		})

		require.ErrorIs(t, err, errNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()

		calls := 0
		err := dbretry.NoResult(t.Context(), func(context.Context) error {
			calls++
			return errReset
		})

		require.ErrorIs(t, err, errReset)
		assert.Equal(t, 4, calls) // Initial attempt + 3 retries
	})
}
