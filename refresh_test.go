package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/faucet/pkg/ratelimit"
)

func TestRefreshAll(t *testing.T) {
	ctx := context.Background()
	f := newTestFaucet(t, newFakeClient())
	_, _, err := f.Drip(ctx, testRecipient, "")
	require.NoError(t, err)

	store := ratelimit.NewMemoryStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.Reserve(ctx, "C:a", start, 24*time.Hour, 1))

	refreshAll(map[string]*Faucet{"C": f}, store, 24*time.Hour, start.Add(25*time.Hour), zerolog.Nop())

	available, daily := f.Supply()
	assert.InDelta(t, daily, available, 0)

	// pruned history no longer counts, even for a longer window
	assert.NoError(t, store.Reserve(ctx, "C:a", start.Add(25*time.Hour), 48*time.Hour, 1))
}

func TestStartRefreshInvalidSchedule(t *testing.T) {
	_, err := startRefresh("not a schedule", nil, ratelimit.NewMemoryStore(), time.Hour, zerolog.Nop())
	assert.Error(t, err)

	c, err := startRefresh("@daily", nil, ratelimit.NewMemoryStore(), time.Hour, zerolog.Nop())
	require.NoError(t, err)
	c.Stop()
}
