package ratelimit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "drips.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestReserveWindow(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	key := Key("C", "0x8f1ca170120dbe6a9d96554dc763c087935b06cb")

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Reserve(ctx, key, start, 24*time.Hour, 1))

			err := s.Reserve(ctx, key, start.Add(time.Hour), 24*time.Hour, 1)
			require.ErrorIs(t, err, ErrLimited)

			var limitErr *LimitError
			require.True(t, errors.As(err, &limitErr))
			assert.Equal(t, 23*time.Hour, limitErr.RetryAfter)

			// other chain, same address
			assert.NoError(t, s.Reserve(ctx, Key("WAGMI", "0x8f1ca170120dbe6a9d96554dc763c087935b06cb"), start, 24*time.Hour, 1))

			assert.NoError(t, s.Reserve(ctx, key, start.Add(24*time.Hour), 24*time.Hour, 1))
		})
	}
}

func TestReserveMultiple(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 3; i++ {
				require.NoError(t, s.Reserve(ctx, "k", start.Add(time.Duration(i)*time.Minute), time.Hour, 3))
			}

			assert.ErrorIs(t, s.Reserve(ctx, "k", start.Add(10*time.Minute), time.Hour, 3), ErrLimited)
			assert.NoError(t, s.Reserve(ctx, "k", start.Add(61*time.Minute), time.Hour, 3))
		})
	}
}

func TestReserveOutOfOrder(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Reserve(ctx, "k", start.Add(10*time.Minute), time.Hour, 2))
			require.NoError(t, s.Reserve(ctx, "k", start, time.Hour, 2))

			err := s.Reserve(ctx, "k", start.Add(20*time.Minute), time.Hour, 2)
			var limitErr *LimitError
			require.True(t, errors.As(err, &limitErr))
			assert.Equal(t, 40*time.Minute, limitErr.RetryAfter)

			// only the earlier drip has expired
			require.NoError(t, s.(Pruner).Prune(ctx, start.Add(65*time.Minute), time.Hour))
			assert.NoError(t, s.Reserve(ctx, "k", start.Add(65*time.Minute), time.Hour, 2))
			assert.ErrorIs(t, s.Reserve(ctx, "k", start.Add(66*time.Minute), time.Hour, 2), ErrLimited)
		})
	}
}

func TestRelease(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Reserve(ctx, "k", now, time.Hour, 1))
			require.NoError(t, s.Release(ctx, "k", now))
			assert.NoError(t, s.Reserve(ctx, "k", now.Add(time.Second), time.Hour, 1))

			// releasing an unknown drip is a no-op
			assert.NoError(t, s.Release(ctx, "other", now))
		})
	}
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Reserve(ctx, "old", now, time.Hour, 1))
			require.NoError(t, s.Reserve(ctx, "new", now.Add(50*time.Minute), time.Hour, 1))

			p, ok := s.(Pruner)
			require.True(t, ok)
			require.NoError(t, p.Prune(ctx, now.Add(90*time.Minute), time.Hour))

			// "old" is free again even with a window that would still cover it
			assert.NoError(t, s.Reserve(ctx, "old", now.Add(90*time.Minute), 2*time.Hour, 1))
			assert.ErrorIs(t, s.Reserve(ctx, "new", now.Add(90*time.Minute), time.Hour, 1), ErrLimited)
		})
	}
}

func TestSQLiteStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "drips.db")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Reserve(ctx, "k", now, time.Hour, 1))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	assert.ErrorIs(t, s.Reserve(ctx, "k", now.Add(time.Minute), time.Hour, 1), ErrLimited)
}
