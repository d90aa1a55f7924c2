package infra

import (
	"fmt"
	"sync"
	"time"

	"todo-api/middleware/ratelimit/domain"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMaxKeys = 10000

// WindowStore keeps a sliding-window log of request timestamps per key.
//
// Every key has its own mutex, so concurrent requests from the same client
// cannot lose updates. The key set is an LRU capped at maxKeys; a janitor
// additionally drops keys that have been quiet for a whole window.
type WindowStore struct {
	rule       domain.WindowRule
	maxKeys    int
	sweepEvery time.Duration
	now        func() time.Time

	keys *lru.Cache[string, *windowLog]
}

type WindowOption func(*WindowStore)

// WithMaxKeys caps the number of tracked keys. The least recently used key is
// evicted first and starts with an empty window if it comes back.
func WithMaxKeys(n int) WindowOption {
	return func(s *WindowStore) { s.maxKeys = n }
}

// WithSweepEvery sets the janitor interval. Zero disables the janitor.
func WithSweepEvery(d time.Duration) WindowOption {
	return func(s *WindowStore) { s.sweepEvery = d }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) WindowOption {
	return func(s *WindowStore) { s.now = now }
}

func NewWindowStore(rule domain.WindowRule, opts ...WindowOption) (*WindowStore, error) {
	if !rule.Valid() {
		return nil, fmt.Errorf("invalid window rule: limit=%d window=%s", rule.Limit, rule.Window)
	}
	s := &WindowStore{
		rule:       rule,
		maxKeys:    defaultMaxKeys,
		sweepEvery: time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	keys, err := lru.New[string, *windowLog](s.maxKeys)
	if err != nil {
		return nil, fmt.Errorf("window store: %w", err)
	}
	s.keys = keys
	return s, nil
}

func (s *WindowStore) Limit() int                { return s.rule.Limit }
func (s *WindowStore) Window() time.Duration     { return s.rule.Window }
func (s *WindowStore) SweepEvery() time.Duration { return s.sweepEvery }
func (s *WindowStore) Len() int                  { return s.keys.Len() }

// Get implements domain.LimiterStore. The returned limiter resolves the key
// on every call, so it keeps counting correctly after the janitor or the LRU
// dropped the log it saw first.
func (s *WindowStore) Get(key domain.Key) domain.Limiter {
	return keyedWindow{store: s, key: string(key)}
}

func (s *WindowStore) log(key string) *windowLog {
	if l, ok := s.keys.Get(key); ok {
		return l
	}
	l := &windowLog{rule: s.rule, now: s.now}
	if prev, ok, _ := s.keys.PeekOrAdd(key, l); ok {
		return prev
	}
	return l
}

// Cleanup removes keys whose newest timestamp fell out of the window. A log
// is retired under its own mutex, so a request racing the sweep either lands
// before it (and keeps the key) or sees the log retired and starts over.
func (s *WindowStore) Cleanup() {
	cutoff := s.now().Add(-s.rule.Window)
	for _, k := range s.keys.Keys() {
		l, ok := s.keys.Peek(k)
		if !ok {
			continue
		}
		l.mu.Lock()
		if l.idleLocked(cutoff) {
			l.retired = true
			if cur, ok := s.keys.Peek(k); ok && cur == l {
				s.keys.Remove(k)
			}
		}
		l.mu.Unlock()
	}
}

// StartJanitor sweeps idle keys periodically. Stop it by cancelling ctx.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.sweepEvery, s.Cleanup)
}

type keyedWindow struct {
	store *WindowStore
	key   string
}

func (k keyedWindow) Allow() bool {
	for {
		if admitted, ok := k.store.log(k.key).allow(); ok {
			return admitted
		}
	}
}

func (k keyedWindow) RetryIn() time.Duration {
	if l, ok := k.store.keys.Peek(k.key); ok {
		return l.RetryIn()
	}
	return 0
}

func (k keyedWindow) Remaining() int {
	if l, ok := k.store.keys.Peek(k.key); ok {
		return l.Remaining()
	}
	return k.store.rule.Limit
}

type windowLog struct {
	mu      sync.Mutex
	rule    domain.WindowRule
	now     func() time.Time
	stamps  []time.Time
	retired bool
}

// allow prunes only once the budget is used up, then admits the request if
// room was made. Rejected attempts are not recorded. ok is false when the
// sweep retired the log, in which case the caller looks the key up again.
func (l *windowLog) allow() (admitted, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.retired {
		return false, false
	}

	if len(l.stamps) >= l.rule.Limit {
		cutoff := now.Add(-l.rule.Window)
		i := 0
		for i < len(l.stamps) && l.stamps[i].Before(cutoff) {
			i++
		}
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
	if len(l.stamps) >= l.rule.Limit {
		return false, true
	}
	l.stamps = append(l.stamps, now)
	return true, true
}

// RetryIn reports how long until the oldest entry leaves the window once the
// budget is used up.
func (l *windowLog) RetryIn() time.Duration {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.stamps) < l.rule.Limit {
		return 0
	}
	// the entry that must expire for one more request to fit
	oldest := l.stamps[len(l.stamps)-l.rule.Limit]
	if d := oldest.Add(l.rule.Window).Sub(now); d > 0 {
		return d
	}
	return 0
}

// Remaining counts what is left of the budget, ignoring entries that have
// already left the window but were not pruned yet.
func (l *windowLog) Remaining() int {
	cutoff := l.now().Add(-l.rule.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	live := 0
	for _, ts := range l.stamps {
		if !ts.Before(cutoff) {
			live++
		}
	}
	if n := l.rule.Limit - live; n > 0 {
		return n
	}
	return 0
}

func (l *windowLog) idleLocked(cutoff time.Time) bool {
	return len(l.stamps) == 0 || l.stamps[len(l.stamps)-1].Before(cutoff)
}
