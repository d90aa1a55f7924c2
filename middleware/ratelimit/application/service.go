package application

import (
	"time"

	"todo-api/middleware/ratelimit/domain"
)

const defaultRetryAfter = 1 * time.Second

// Service applies the rate-limit rule for one key.
//
// It does not know about HTTP headers or status codes, it only returns a
// decision.
type Service struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

func (s Service) Decide(key domain.Key) domain.Decision {
	allow := domain.Decision{Allowed: true, Remaining: -1}
	if s.Store == nil {
		return allow
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = defaultRetryAfter
	}

	lim := s.Store.Get(key)
	if lim == nil {
		return allow
	}
	allowed := lim.Allow()

	dec := domain.Decision{Allowed: allowed, Remaining: -1}
	if !allowed {
		dec.RetryAfter = s.RetryAfter
	}
	if h, ok := lim.(domain.Hinter); ok {
		dec.Remaining = h.Remaining()
		if !allowed {
			if in := h.RetryIn(); in > 0 {
				dec.RetryAfter = in
			}
		}
	}
	return dec
}
