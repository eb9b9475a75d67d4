// Package memory implements ratelimit.Limiter with a per-key fixed-window
// counter. Each key's window starts at its first request (or first request
// after expiry), not at wall-clock minute marks.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jmilder/veil/internal/ratelimit"
)

type record struct {
	count   int
	resetAt time.Time
}

type Store struct {
	mu      sync.Mutex
	records map[string]*record

	// idleTTL is how long past expiry a record may linger before a sweep
	// removes it. Records for returning keys are reset in place and never
	// need the sweep.
	idleTTL    time.Duration
	sweepEvery time.Duration
}

type Option func(*Store)

func WithIdleTTL(d time.Duration) Option {
	return func(s *Store) { s.idleTTL = d }
}

func WithSweepEvery(d time.Duration) Option {
	return func(s *Store) { s.sweepEvery = d }
}

func New(opts ...Option) *Store {
	s := &Store{
		records:    make(map[string]*record),
		idleTTL:    5 * time.Minute,
		sweepEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*record)
	return nil
}

// Allow runs the whole check-and-increment under one lock, so two
// simultaneous checks for the same key at the limit boundary can never both
// admit.
func (s *Store) Allow(_ context.Context, key string, p ratelimit.Policy, now time.Time) (ratelimit.Decision, error) {
	window := p.Window
	if window <= 0 {
		window = ratelimit.DefaultWindow
	}

	// A non-positive limit rejects everything, including what would
	// otherwise be a window reset.
	if p.Limit <= 0 {
		return ratelimit.Decision{
			Allowed:      false,
			Limit:        p.Limit,
			Remaining:    0,
			ResetUnixSec: now.Add(window).Unix(),
		}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok || now.After(rec.resetAt) {
		// First request of a fresh window: reset, not increment.
		rec = &record{count: 1, resetAt: now.Add(window)}
		s.records[key] = rec
		return decision(true, p.Limit, rec), nil
	}

	if rec.count >= p.Limit {
		return decision(false, p.Limit, rec), nil
	}

	rec.count++
	return decision(true, p.Limit, rec), nil
}

func decision(allowed bool, limit int, rec *record) ratelimit.Decision {
	remaining := limit - rec.count
	if remaining < 0 {
		remaining = 0
	}
	return ratelimit.Decision{
		Allowed:      allowed,
		Limit:        limit,
		Remaining:    remaining,
		ResetUnixSec: rec.resetAt.Unix(),
	}
}

// Cleanup drops records whose window expired more than idleTTL ago. Keys
// still inside an active window are untouched.
func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, rec := range s.records {
		if rec.resetAt.Before(cutoff) {
			delete(s.records, k)
		}
	}
}

// StartJanitor sweeps expired records periodically until ctx is done, so a
// long-lived process seeing many distinct identities stays bounded.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.sweepEvery <= 0 {
		return
	}

	t := time.NewTicker(s.sweepEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
