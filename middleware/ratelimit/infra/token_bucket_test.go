package infra

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"todo-api/middleware/ratelimit/domain"
)

func newTokenStore(t *testing.T, clock *fakeClock, opts ...TokenBucketOption) *TokenBucketStore {
	t.Helper()
	opts = append([]TokenBucketOption{WithBucketClock(clock.Now), WithBucketSweepEvery(0)}, opts...)
	s, err := NewTokenBucketStore(fiveEveryTen, opts...)
	if err != nil {
		t.Fatalf("NewTokenBucketStore: %v", err)
	}
	return s
}

func TestTokenBucketStore_DerivesRateFromRule(t *testing.T) {
	s := newTokenStore(t, newFakeClock())

	if got := s.Burst(); got != 5 {
		t.Fatalf("expected burst 5, got %d", got)
	}
	if got := s.RPS(); got != 0.5 {
		t.Fatalf("expected 0.5 tokens per second, got %v", got)
	}
}

func TestTokenBucketStore_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	s := newTokenStore(t, clock)

	lim := s.Get("10.0.0.1")
	for i := 0; i < 5; i++ {
		if !lim.Allow() {
			t.Fatalf("request %d: expected allowed", i+1)
		}
	}
	if lim.Allow() {
		t.Fatalf("request 6: expected rejected with an empty bucket")
	}

	clock.Advance(2 * time.Second)
	if !lim.Allow() {
		t.Fatalf("expected one token to have refilled after 2s")
	}
	if lim.Allow() {
		t.Fatalf("expected the refilled token to be spent")
	}
}

func TestTokenBucketStore_HintsRetryAndRemaining(t *testing.T) {
	clock := newFakeClock()
	s := newTokenStore(t, clock)

	lim := s.Get("10.0.0.1")
	h, ok := lim.(domain.Hinter)
	if !ok {
		t.Fatalf("expected token limiter to implement domain.Hinter")
	}
	if got := h.Remaining(); got != 5 {
		t.Fatalf("expected Remaining=5 for a new key, got %d", got)
	}
	if got := h.RetryIn(); got != 0 {
		t.Fatalf("expected RetryIn=0 for a new key, got %s", got)
	}

	for i := 0; i < 5; i++ {
		lim.Allow()
	}
	if got := h.Remaining(); got != 0 {
		t.Fatalf("expected Remaining=0, got %d", got)
	}
	if got := h.RetryIn(); got != 2*time.Second {
		t.Fatalf("expected RetryIn=2s, got %s", got)
	}
	// asking for the hint must not spend the token
	if got := h.RetryIn(); got != 2*time.Second {
		t.Fatalf("expected RetryIn to be stable, got %s", got)
	}

	clock.Advance(time.Second)
	if got := h.RetryIn(); got != time.Second {
		t.Fatalf("expected RetryIn=1s, got %s", got)
	}
	clock.Advance(time.Second)
	if !lim.Allow() {
		t.Fatalf("expected the hinted token to be available")
	}
}

func TestTokenBucketStore_MaxKeysEvictsLeastRecentlyUsed(t *testing.T) {
	clock := newFakeClock()
	s := newTokenStore(t, clock, WithBucketMaxKeys(2))

	s.Get("a").Allow()
	s.Get("b").Allow()
	s.Get("c").Allow()

	if got := s.Len(); got != 2 {
		t.Fatalf("expected 2 tracked keys, got %d", got)
	}
	if got := s.Get("a").(domain.Hinter).Remaining(); got != 5 {
		t.Fatalf("expected evicted key to come back with a full bucket, got %d", got)
	}
}

func TestTokenBucketStore_CleanupDropsOnlyFullBuckets(t *testing.T) {
	clock := newFakeClock()
	s := newTokenStore(t, clock)

	s.Get("quiet").Allow()
	clock.Advance(2 * time.Second)
	for i := 0; i < 5; i++ {
		s.Get("busy").Allow()
	}

	s.Cleanup()

	if got := s.Len(); got != 1 {
		t.Fatalf("expected only the busy key to survive, got %d keys", got)
	}
	if got := s.Get("busy").(domain.Hinter).Remaining(); got != 0 {
		t.Fatalf("expected the busy bucket to keep its state, got %d", got)
	}
}

func TestTokenBucketStore_LimiterKeepsCountingAfterSweep(t *testing.T) {
	clock := newFakeClock()
	s := newTokenStore(t, clock)

	lim := s.Get("10.0.0.1")
	s.Get("10.0.0.1").Allow()
	clock.Advance(2 * time.Second)
	s.Cleanup()

	for i := 0; i < 5; i++ {
		if !lim.Allow() {
			t.Fatalf("request %d: expected allowed from a fresh bucket", i+1)
		}
	}
	if s.Get("10.0.0.1").Allow() {
		t.Fatalf("expected requests through the old limiter to drain the new bucket")
	}
}

func TestTokenBucketStore_ConcurrentSameKeyNeverOveradmits(t *testing.T) {
	s := newTokenStore(t, newFakeClock())

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Cleanup()
		}()
		go func() {
			defer wg.Done()
			if s.Get("shared").Allow() {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 5 {
		t.Fatalf("expected exactly 5 admitted requests, got %d", got)
	}
}

func TestNewTokenBucketStore_RejectsInvalidRule(t *testing.T) {
	if _, err := NewTokenBucketStore(domain.WindowRule{Limit: 5}); err == nil {
		t.Fatalf("expected error for zero window")
	}
	if _, err := NewTokenBucketStore(fiveEveryTen, WithBucketMaxKeys(-1)); err == nil {
		t.Fatalf("expected error for negative max keys")
	}
}
