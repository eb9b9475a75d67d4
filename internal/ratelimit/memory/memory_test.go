package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmilder/veil/internal/ratelimit"
)

var t0 = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestAllowAdmitsUpToLimitThenRejects(t *testing.T) {
	s := New()
	p := ratelimit.Policy{Limit: 3, Window: time.Minute}

	for i := 0; i < 3; i++ {
		dec, err := s.Allow(context.Background(), "1.2.3.4", p, t0.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dec.Allowed {
			t.Fatalf("request %d: expected admit", i+1)
		}
		if want := 3 - (i + 1); dec.Remaining != want {
			t.Fatalf("request %d: expected remaining=%d, got %d", i+1, want, dec.Remaining)
		}
	}

	dec, err := s.Allow(context.Background(), "1.2.3.4", p, t0.Add(3*time.Second))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected 4th request within window to be rejected")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining=0 on rejection, got %d", dec.Remaining)
	}
	if want := t0.Add(time.Minute).Unix(); dec.ResetUnixSec != want {
		t.Fatalf("expected reset=%d (first-seen + window), got %d", want, dec.ResetUnixSec)
	}
}

func TestNonPositiveLimitRejectsEverything(t *testing.T) {
	s := New()

	for _, limit := range []int{0, -1} {
		dec, err := s.Allow(context.Background(), "k", ratelimit.Policy{Limit: limit}, t0)
		if err != nil {
			t.Fatalf("limit=%d: unexpected error: %v", limit, err)
		}
		if dec.Allowed {
			t.Fatalf("limit=%d: expected first request to be rejected", limit)
		}
	}
}

func TestExpiredWindowResetsAndAdmits(t *testing.T) {
	s := New()
	p := ratelimit.Policy{Limit: 1, Window: time.Minute}

	if dec, _ := s.Allow(context.Background(), "k", p, t0); !dec.Allowed {
		t.Fatalf("expected first request to admit")
	}

	// pile up rejections inside the window
	for i := 0; i < 5; i++ {
		if dec, _ := s.Allow(context.Background(), "k", p, t0.Add(30*time.Second)); dec.Allowed {
			t.Fatalf("expected rejection inside active window")
		}
	}

	t1 := t0.Add(61 * time.Second)
	dec, _ := s.Allow(context.Background(), "k", p, t1)
	if !dec.Allowed {
		t.Fatalf("expected admit after window expiry regardless of prior rejections")
	}
	if want := t1.Add(time.Minute).Unix(); dec.ResetUnixSec != want {
		t.Fatalf("expected new window anchored at the admitting request, reset=%d, got %d", want, dec.ResetUnixSec)
	}
}

func TestWindowBoundaryIsExclusive(t *testing.T) {
	s := New()
	p := ratelimit.Policy{Limit: 1, Window: time.Minute}

	s.Allow(context.Background(), "k", p, t0)

	// exactly at resetAt the window is still active
	if dec, _ := s.Allow(context.Background(), "k", p, t0.Add(time.Minute)); dec.Allowed {
		t.Fatalf("expected rejection at the exact reset instant")
	}
	if dec, _ := s.Allow(context.Background(), "k", p, t0.Add(time.Minute+time.Nanosecond)); !dec.Allowed {
		t.Fatalf("expected admit just past the reset instant")
	}
}

func TestKeysDoNotInterfere(t *testing.T) {
	s := New()
	p := ratelimit.Policy{Limit: 1, Window: time.Minute}

	if dec, _ := s.Allow(context.Background(), "a", p, t0); !dec.Allowed {
		t.Fatalf("expected key a to admit")
	}
	if dec, _ := s.Allow(context.Background(), "a", p, t0); dec.Allowed {
		t.Fatalf("expected key a to be exhausted")
	}
	if dec, _ := s.Allow(context.Background(), "b", p, t0); !dec.Allowed {
		t.Fatalf("expected key b to be unaffected by key a")
	}
}

func TestConcurrentChecksAdmitExactlyLimit(t *testing.T) {
	s := New()
	p := ratelimit.Policy{Limit: 10, Window: time.Minute}

	const callers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			dec, err := s.Allow(context.Background(), "shared", p, t0)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if dec.Allowed {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if admitted != 10 {
		t.Fatalf("expected exactly 10 admits from %d concurrent checks, got %d", callers, admitted)
	}
}

func TestCleanupRemovesOnlyExpiredRecords(t *testing.T) {
	s := New(WithIdleTTL(time.Second))
	p := ratelimit.Policy{Limit: 5, Window: time.Minute}

	// stale: window ended two minutes ago
	s.Allow(context.Background(), "stale", p, time.Now().Add(-3*time.Minute))
	// live: window still active
	s.Allow(context.Background(), "live", p, time.Now())

	s.Cleanup()

	s.mu.Lock()
	_, staleKept := s.records["stale"]
	_, liveKept := s.records["live"]
	s.mu.Unlock()

	if staleKept {
		t.Fatalf("expected expired record to be evicted")
	}
	if !liveKept {
		t.Fatalf("expected active record to survive the sweep")
	}
}

func TestJanitorStopsWithContext(t *testing.T) {
	s := New(WithSweepEvery(time.Millisecond), WithIdleTTL(0))
	s.Allow(context.Background(), "stale", ratelimit.Policy{Limit: 1, Window: time.Millisecond}, time.Now().Add(-time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	s.StartJanitor(ctx)

	deadline := time.After(time.Second)
	for {
		s.mu.Lock()
		n := len(s.records)
		s.mu.Unlock()
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("janitor did not evict expired record in time")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
}
