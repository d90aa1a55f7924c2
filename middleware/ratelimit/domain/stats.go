package domain

import (
	"context"
	"time"
)

// StatsEvent is one rate-limit decision.
//
// Method and Path are plain strings so the event is not tied to HTTP.
// Beware of cardinality when persisting Key or Path.
type StatsEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	At time.Time
}

// StatsStore persists rate-limit decisions. Callers treat errors as
// best-effort and never fail the request because of them.
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
