package ratelimit

import (
	"log/slog"
	"net/http"
	"time"

	"todo-api/middleware/ratelimit/application"
	"todo-api/middleware/ratelimit/domain"
	"todo-api/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	Max            int
	RejectStatus   int
	AcquireTimeout time.Duration
	// Pool overrides the default semaphore sized by Max.
	Pool   domain.SlotPool
	Logger *slog.Logger
}

// ConcurrencyMiddleware caps in-flight requests. Max <= 0 disables it.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewSemaphore(opts.Max)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	svc := application.ConcurrencyService{
		Pool:           opts.Pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				opts.Logger.Warn("no request slot available", "method", r.Method, "path", r.URL.Path, "timeout", opts.AcquireTimeout)
				writeMessage(w, opts.RejectStatus, http.StatusText(opts.RejectStatus))
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
