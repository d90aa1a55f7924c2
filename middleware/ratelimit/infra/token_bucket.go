package infra

import (
	"fmt"
	"math"
	"sync"
	"time"

	"todo-api/middleware/ratelimit/domain"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// TokenBucketStore spends the same budget as a WindowStore through an
// x/time/rate bucket per key: a client may burst rule.Limit requests, and
// the bucket refills at rule.Limit per rule.Window.
//
// Unlike the window log it lets a drained client back in one request at a
// time as tokens trickle in, so it never admits more than the window's
// average rate over the long run but can admit close to twice the limit
// within a single window.
type TokenBucketStore struct {
	rule       domain.WindowRule
	rps        rate.Limit
	maxKeys    int
	sweepEvery time.Duration
	now        func() time.Time

	keys *lru.Cache[string, *bucket]
}

type TokenBucketOption func(*TokenBucketStore)

// WithBucketMaxKeys caps the number of tracked keys. An evicted key comes
// back with a full bucket.
func WithBucketMaxKeys(n int) TokenBucketOption {
	return func(s *TokenBucketStore) { s.maxKeys = n }
}

// WithBucketSweepEvery sets the janitor interval. Zero disables the janitor.
func WithBucketSweepEvery(d time.Duration) TokenBucketOption {
	return func(s *TokenBucketStore) { s.sweepEvery = d }
}

func WithBucketClock(now func() time.Time) TokenBucketOption {
	return func(s *TokenBucketStore) { s.now = now }
}

func NewTokenBucketStore(rule domain.WindowRule, opts ...TokenBucketOption) (*TokenBucketStore, error) {
	if !rule.Valid() {
		return nil, fmt.Errorf("invalid window rule: limit=%d window=%s", rule.Limit, rule.Window)
	}
	s := &TokenBucketStore{
		rule:       rule,
		rps:        rate.Limit(float64(rule.Limit) / rule.Window.Seconds()),
		maxKeys:    defaultMaxKeys,
		sweepEvery: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	keys, err := lru.New[string, *bucket](s.maxKeys)
	if err != nil {
		return nil, fmt.Errorf("token bucket store: %w", err)
	}
	s.keys = keys
	return s, nil
}

func (s *TokenBucketStore) RPS() float64 { return float64(s.rps) }
func (s *TokenBucketStore) Burst() int   { return s.rule.Limit }
func (s *TokenBucketStore) Len() int     { return s.keys.Len() }

// Get implements domain.LimiterStore.
func (s *TokenBucketStore) Get(key domain.Key) domain.Limiter {
	return keyedBucket{store: s, key: string(key)}
}

func (s *TokenBucketStore) lookup(key string) *bucket {
	if b, ok := s.keys.Get(key); ok {
		return b
	}
	b := &bucket{lim: rate.NewLimiter(s.rps, s.rule.Limit), now: s.now}
	if prev, ok, _ := s.keys.PeekOrAdd(key, b); ok {
		return prev
	}
	return b
}

// Cleanup drops buckets that have refilled completely; a full bucket is
// indistinguishable from a new one.
func (s *TokenBucketStore) Cleanup() {
	now := s.now()
	for _, k := range s.keys.Keys() {
		b, ok := s.keys.Peek(k)
		if !ok {
			continue
		}
		b.mu.Lock()
		if b.lim.TokensAt(now) >= float64(s.rule.Limit) {
			b.retired = true
			if cur, ok := s.keys.Peek(k); ok && cur == b {
				s.keys.Remove(k)
			}
		}
		b.mu.Unlock()
	}
}

// StartJanitor sweeps full buckets periodically. Stop it by cancelling ctx.
func (s *TokenBucketStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.sweepEvery, s.Cleanup)
}

type keyedBucket struct {
	store *TokenBucketStore
	key   string
}

func (k keyedBucket) Allow() bool {
	for {
		if admitted, ok := k.store.lookup(k.key).allow(); ok {
			return admitted
		}
	}
}

func (k keyedBucket) RetryIn() time.Duration {
	if b, ok := k.store.keys.Peek(k.key); ok {
		return b.retryIn()
	}
	return 0
}

func (k keyedBucket) Remaining() int {
	if b, ok := k.store.keys.Peek(k.key); ok {
		return b.remaining()
	}
	return k.store.rule.Limit
}

type bucket struct {
	mu      sync.Mutex
	lim     *rate.Limiter
	now     func() time.Time
	retired bool
}

func (b *bucket) allow() (admitted, ok bool) {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.retired {
		return false, false
	}
	return b.lim.AllowN(now, 1), true
}

// retryIn is how long until the next token arrives, measured by reserving it
// and handing it straight back.
func (b *bucket) retryIn() time.Duration {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	r := b.lim.ReserveN(now, 1)
	if !r.OK() {
		return 0
	}
	d := r.DelayFrom(now)
	r.CancelAt(now)
	return d
}

func (b *bucket) remaining() int {
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	return max(int(math.Floor(b.lim.TokensAt(now))), 0)
}
