package ratelimit

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.Mutex
	drips map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drips: make(map[string][]time.Time)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, now time.Time, window time.Duration, limit int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	kept := s.drips[key][:0]
	for _, at := range s.drips[key] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= limit {
		s.drips[key] = kept
		oldest := kept[0]
		for _, at := range kept[1:] {
			if at.Before(oldest) {
				oldest = at
			}
		}
		return &LimitError{RetryAfter: retryAfter(oldest, now, window)}
	}

	s.drips[key] = append(kept, now)
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drips := s.drips[key]
	for i, t := range drips {
		if t.Equal(at) {
			s.drips[key] = append(drips[:i], drips[i+1:]...)
			break
		}
	}

	if len(s.drips[key]) == 0 {
		delete(s.drips, key)
	}

	return nil
}

// Prune drops history older than window for every key.
func (s *MemoryStore) Prune(_ context.Context, now time.Time, window time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-window)
	for key, drips := range s.drips {
		kept := drips[:0]
		for _, at := range drips {
			if at.After(cutoff) {
				kept = append(kept, at)
			}
		}

		if len(kept) == 0 {
			delete(s.drips, key)
		} else {
			s.drips[key] = kept
		}
	}

	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
