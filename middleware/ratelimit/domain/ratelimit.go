package domain

import "time"

// Key identifies a client for rate limiting purposes (IP, API key, user).
type Key string

// Limiter decides whether one more action is allowed right now.
//
// Implementations may be a sliding-window log, a token bucket, or a remote
// counter; the application layer does not care.
type Limiter interface {
	Allow() bool
}

// Hinter is implemented by limiters that can tell a client when to come back.
type Hinter interface {
	// RetryIn is how long until the oldest admitted request leaves the
	// budget. Zero when a request would be admitted now.
	RetryIn() time.Duration
	// Remaining is how many more requests would be admitted right now.
	Remaining() int
}

// LimiterStore returns the limiter for a key, creating it on first use.
// Implementations own eviction of idle keys.
type LimiterStore interface {
	Get(Key) Limiter
}

// WindowRule is a fixed request budget over a trailing time window.
type WindowRule struct {
	Limit  int
	Window time.Duration
}

// Valid reports whether the rule can admit at least one request.
func (r WindowRule) Valid() bool {
	return r.Limit > 0 && r.Window > 0
}

type Decision struct {
	Allowed bool
	// RetryAfter is the value sent in Retry-After when the request is blocked.
	// Zero means no recommendation.
	RetryAfter time.Duration
	// Remaining is the budget left after this decision, or -1 when the
	// limiter cannot tell.
	Remaining int
}
