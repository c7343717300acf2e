// Package ratelimit tracks how often an address received a drip and refuses
// drips that would exceed the allowance for a rolling window.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrLimited = errors.New("rate limited")

// LimitError is returned by Reserve when the allowance is used up.
type LimitError struct {
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *LimitError) Is(target error) bool {
	return target == ErrLimited
}

// Store records drips per key.
type Store interface {
	// Reserve records a drip for key at now unless limit drips already
	// happened within window before now.
	Reserve(ctx context.Context, key string, now time.Time, window time.Duration, limit int) error
	// Release removes the drip recorded for key at at.
	Release(ctx context.Context, key string, at time.Time) error
	Close() error
}

// Pruner is implemented by stores that can drop expired history.
type Pruner interface {
	Prune(ctx context.Context, now time.Time, window time.Duration) error
}

// Key builds the store key for an address on a chain.
func Key(chain, addr string) string {
	return chain + ":" + addr
}

func retryAfter(oldest, now time.Time, window time.Duration) time.Duration {
	d := oldest.Add(window).Sub(now)
	if d < time.Second {
		d = time.Second
	}

	return d
}
