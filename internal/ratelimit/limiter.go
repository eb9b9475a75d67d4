package ratelimit

import (
	"context"
	"time"
)

// DefaultWindow is the fixed-window length used when a Policy leaves
// Window unset.
const DefaultWindow = time.Minute

type Policy struct {
	Limit  int           // requests admitted per window
	Window time.Duration // window length; <= 0 means DefaultWindow
}

type Decision struct {
	Allowed      bool
	Limit        int
	Remaining    int   // slots left in the current window (min 0)
	ResetUnixSec int64 // when the current window expires
}

// Limiter decides whether a request keyed by a client identity may proceed.
// The caller supplies now so decisions stay deterministic under test.
type Limiter interface {
	Allow(ctx context.Context, key string, p Policy, now time.Time) (Decision, error)
	Close() error
}
