package ratelimit

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"todo-api/middleware/ratelimit/domain"
	"todo-api/middleware/ratelimit/infra"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newWindowStore(t *testing.T, clock *testClock) *infra.WindowStore {
	t.Helper()
	store, err := infra.NewWindowStore(
		domain.WindowRule{Limit: 5, Window: 10 * time.Second},
		infra.WithClock(clock.Now),
		infra.WithSweepEvery(0),
	)
	if err != nil {
		t.Fatalf("NewWindowStore: %v", err)
	}
	return store
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "http://example/todos/", nil)
	r.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestMiddleware_SixthRequestInWindowIsRejected(t *testing.T) {
	clock := &testClock{t: time.Unix(1700000000, 0)}

	calls := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	h := Middleware(Options{Store: newWindowStore(t, clock)})(next)

	for i := 0; i < 5; i++ {
		if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
		}
		clock.Advance(time.Second)
	}

	w := doRequest(h, "10.0.0.1:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected JSON body: %v", err)
	}
	if body["message"] != "Too many requests" {
		t.Fatalf("unexpected body: %v", body)
	}
	// the oldest request was made 5s ago and leaves the 10s window in 5s
	if got := w.Header().Get("Retry-After"); got != "5" {
		t.Fatalf("expected Retry-After=5, got %q", got)
	}
	if calls != 5 {
		t.Fatalf("expected next handler to be called 5 times, got %d", calls)
	}

	clock.Advance(5*time.Second + time.Millisecond)
	if w := doRequest(h, "10.0.0.1:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 after the window elapsed, got %d", w.Code)
	}
}

func TestMiddleware_OtherClientsAreNotAffected(t *testing.T) {
	clock := &testClock{t: time.Unix(1700000000, 0)}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(Options{Store: newWindowStore(t, clock)})(next)

	for i := 0; i < 6; i++ {
		doRequest(h, "10.0.0.1:1234")
	}
	if w := doRequest(h, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for a different client, got %d", w.Code)
	}
}

func TestMiddleware_WindowHeaders(t *testing.T) {
	clock := &testClock{t: time.Unix(1700000000, 0)}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(Options{Store: newWindowStore(t, clock), AddRateLimitHeaders: true})(next)

	w := doRequest(h, "10.0.0.1:1234")
	if got := w.Header().Get("X-RateLimit-Key"); got != "10.0.0.1" {
		t.Fatalf("expected X-RateLimit-Key=10.0.0.1, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Fatalf("expected X-RateLimit-Limit=5, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Window"); got != "10" {
		t.Fatalf("expected X-RateLimit-Window=10, got %q", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "4" {
		t.Fatalf("expected X-RateLimit-Remaining=4, got %q", got)
	}

	for i := 0; i < 5; i++ {
		w = doRequest(h, "10.0.0.1:1234")
	}
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining=0 once rejected, got %q", got)
	}
	if got := w.Header().Get("Retry-After"); got != "10" {
		t.Fatalf("expected Retry-After=10 when all requests share one instant, got %q", got)
	}
}

func TestMiddleware_TokenBucketHeadersAndRetryAfter(t *testing.T) {
	store, err := infra.NewTokenBucketStore(domain.WindowRule{Limit: 1, Window: 2500 * time.Millisecond}, infra.WithBucketSweepEvery(0))
	if err != nil {
		t.Fatalf("NewTokenBucketStore: %v", err)
	}
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(Options{
		Store:               store,
		RetryAfter:          time.Minute,
		AddRateLimitHeaders: true,
	})(next)

	w1 := doRequest(h, "10.0.0.1:1234")
	if w1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w1.Code)
	}
	if w1.Header().Get("X-RateLimit-RPS") != "0.4" || w1.Header().Get("X-RateLimit-Burst") != "1" {
		t.Fatalf("expected token bucket headers, got %v", w1.Header())
	}
	if got := w1.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected X-RateLimit-Remaining=0, got %q", got)
	}

	w2 := doRequest(h, "10.0.0.1:1234")
	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	// the next token is just under 2.5s away, which rounds up
	if got := strings.TrimSpace(w2.Header().Get("Retry-After")); got != "3" {
		t.Fatalf("expected Retry-After=3, got %q", got)
	}
}

func TestMiddleware_RecordsStats(t *testing.T) {
	clock := &testClock{t: time.Unix(1700000000, 0)}
	stats := infra.NewMemoryStatsStore()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(Options{Store: newWindowStore(t, clock), Stats: stats})(next)

	for i := 0; i < 7; i++ {
		doRequest(h, "10.0.0.1:1234")
	}

	if got := stats.Total(); got.Allowed != 5 || got.Denied != 2 {
		t.Fatalf("unexpected totals: %+v", got)
	}
}

func TestMiddleware_RecordsStatsUnderRouteFn(t *testing.T) {
	clock := &testClock{t: time.Unix(1700000000, 0)}
	stats := infra.NewMemoryStatsStore()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := Middleware(Options{
		Store:   newWindowStore(t, clock),
		Stats:   stats,
		RouteFn: func(r *http.Request) string { return "/todos/{id}" },
	})(next)

	for _, path := range []string{"/todos/1", "/todos/2", "/todos/3"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	snap := stats.Snapshot()
	if len(snap.ByRoute) != 1 {
		t.Fatalf("expected one route entry, got %v", snap.ByRoute)
	}
	if got := snap.ByRoute["GET /todos/{id}"]; got.Allowed != 3 {
		t.Fatalf("unexpected route counters: %+v", got)
	}
}
