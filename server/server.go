package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"todo-api/config"
	"todo-api/middleware/envelope"
	"todo-api/middleware/ratelimit"
	"todo-api/middleware/timing"
	"todo-api/todo"
)

type Options struct {
	Todos       *todo.Handler
	RateLimit   *RateLimit
	Concurrency ratelimit.ConcurrencyOptions
	Logger      *slog.Logger
	// Now replaces time.Now for the timing middleware.
	Now func() time.Time
}

// NewHandler returns the full stack, outermost first:
// timing, panic recovery, rate limit, concurrency cap, mux.
func NewHandler(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Concurrency.Logger == nil {
		opts.Concurrency.Logger = opts.Logger
	}

	mux := http.NewServeMux()
	opts.Todos.Routes(mux)
	mux.Handle("GET /ratelimit/stats", envelope.Handle(opts.Logger, statsHandler(opts.RateLimit)))
	mux.Handle("/ratelimit/stats", envelope.Handle(opts.Logger, envelope.MethodNotAllowed(http.MethodGet, http.MethodHead)))
	mux.Handle("/", envelope.Handle(opts.Logger, envelope.NotFound))

	var h http.Handler = mux
	h = ratelimit.ConcurrencyMiddleware(opts.Concurrency)(h)
	h = opts.RateLimit.Middleware(mux)(h)
	h = envelope.Recover(opts.Logger)(h)
	h = timing.Middleware(timing.Options{Logger: opts.Logger, Now: opts.Now})(h)
	return h
}

func NewHTTPServer(cfg config.Server, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Serve runs srv on ln until ctx is done, then shuts it down gracefully,
// giving in-flight requests up to shutdownTimeout.
func Serve(ctx context.Context, srv *http.Server, ln net.Listener, shutdownTimeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
