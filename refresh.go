package main

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/luxfi/faucet/pkg/ratelimit"
)

// startRefresh refills every faucet and prunes expired drip history on
// schedule. The returned cron must be stopped by the caller.
func startRefresh(
	schedule string,
	faucets map[string]*Faucet,
	store ratelimit.Store,
	window time.Duration,
	logger zerolog.Logger,
) (*cron.Cron, error) {
	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		refreshAll(faucets, store, window, time.Now(), logger)
	})
	if err != nil {
		return nil, err
	}

	c.Start()
	logger.Info().Msgf("daily refresh scheduled with %q", schedule)

	return c, nil
}

func refreshAll(
	faucets map[string]*Faucet,
	store ratelimit.Store,
	window time.Duration,
	now time.Time,
	logger zerolog.Logger,
) {
	for _, f := range faucets {
		f.Refill()
	}

	if p, ok := store.(ratelimit.Pruner); ok {
		if err := p.Prune(context.Background(), now, window); err != nil {
			logger.Error().Msgf("error pruning drip history: %s", err)
		}
	}
}
