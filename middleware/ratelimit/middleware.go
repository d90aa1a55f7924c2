package ratelimit

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"todo-api/middleware/ratelimit/application"
	"todo-api/middleware/ratelimit/domain"
)

const RejectMessage = "Too many requests"

type KeyFunc func(r *http.Request) string

// RouteFunc names the route a request is recorded under in stats.
type RouteFunc func(r *http.Request) string

type Options struct {
	Store domain.LimiterStore
	Stats domain.StatsStore
	KeyFn KeyFunc
	// RouteFn defaults to the raw URL path. Set it to a route template
	// lookup so stats stay bounded when paths carry ids.
	RouteFn             RouteFunc
	KeyHeader           string
	TrustXForwardedFor  bool
	RejectStatus        int
	RetryAfter          time.Duration
	AddRateLimitHeaders bool
	Logger              *slog.Logger
}

type tokenInfo interface {
	RPS() float64
	Burst() int
}

type windowInfo interface {
	Limit() int
	Window() time.Duration
}

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// first X-Forwarded-For entry is the original client
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RetryAfter == 0 {
		opts.RetryAfter = 1 * time.Second
		if wi, ok := opts.Store.(windowInfo); ok {
			opts.RetryAfter = wi.Window()
		}
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = func(r *http.Request) string { return r.URL.Path }
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc := application.Service{
		Store:      opts.Store,
		RetryAfter: opts.RetryAfter,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)

			if opts.AddRateLimitHeaders {
				setInfoHeaders(w.Header(), key, opts.Store)
			}

			dec := svc.Decide(domain.Key(key))
			if opts.Stats != nil {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     domain.Key(key),
					Allowed: dec.Allowed,
					Method:  r.Method,
					Path:    opts.RouteFn(r),
					At:      time.Now(),
				})
				if err != nil {
					opts.Logger.Warn("rate limit stats not recorded", "err", err)
				}
			}
			if opts.AddRateLimitHeaders && dec.Remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
			}
			if !dec.Allowed {
				opts.Logger.Info("rate limited", "key", key, "method", r.Method, "path", r.URL.Path)
				w.Header().Set("Retry-After", formatInt(int(math.Ceil(dec.RetryAfter.Seconds()))))
				writeMessage(w, opts.RejectStatus, RejectMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setInfoHeaders(h http.Header, key string, store domain.LimiterStore) {
	h.Set("X-RateLimit-Key", key)
	switch info := store.(type) {
	case windowInfo:
		h.Set("X-RateLimit-Limit", formatInt(info.Limit()))
		h.Set("X-RateLimit-Window", formatFloat(info.Window().Seconds()))
	case tokenInfo:
		h.Set("X-RateLimit-RPS", formatFloat(info.RPS()))
		h.Set("X-RateLimit-Burst", formatInt(info.Burst()))
	}
}
