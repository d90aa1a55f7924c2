package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"todo-api/config"
	"todo-api/middleware/envelope"
	"todo-api/middleware/ratelimit"
	"todo-api/middleware/ratelimit/domain"
	"todo-api/middleware/ratelimit/infra"

	"github.com/redis/go-redis/v9"
)

// RateLimit is the limiter built from config, ready to be placed in the chain.
type RateLimit struct {
	Enabled bool
	Options ratelimit.Options
	// Snapshot reads the recorded counters for GET /ratelimit/stats. Nil
	// when no stats backend is configured.
	Snapshot func(ctx context.Context) (infra.StatsSnapshot, error)
}

type janitor interface {
	StartJanitor(ctx infra.DoneContext)
}

// StartJanitor starts the idle-key sweep of stores that have one.
func (rl *RateLimit) StartJanitor(ctx infra.DoneContext) {
	if rl == nil {
		return
	}
	if j, ok := rl.Options.Store.(janitor); ok {
		j.StartJanitor(ctx)
	}
}

// Middleware returns the limiter, or a pass-through when rl is nil or
// disabled. Stats are recorded under the mux pattern a request resolves to.
func (rl *RateLimit) Middleware(mux *http.ServeMux) func(http.Handler) http.Handler {
	if rl == nil || !rl.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	opts := rl.Options
	if opts.RouteFn == nil && mux != nil {
		opts.RouteFn = muxRoute(mux)
	}
	return ratelimit.Middleware(opts)
}

// muxRoute maps a request to the path of the pattern mux would serve it
// with, so /todos/1 and /todos/2 share "/todos/{id}" and unknown paths
// share "/".
func muxRoute(mux *http.ServeMux) ratelimit.RouteFunc {
	return func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			return "/"
		}
		if _, path, ok := strings.Cut(pattern, " "); ok {
			return path
		}
		return pattern
	}
}

// NewRateLimit builds the store and stats backend selected by cfg. rdb is
// only used by the redis backends and must be set when they are selected.
func NewRateLimit(cfg config.RateLimit, rdb *redis.Client, logger *slog.Logger) (*RateLimit, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rl := &RateLimit{
		Enabled: cfg.Enabled,
		Options: ratelimit.Options{
			KeyHeader:           cfg.KeyHeader,
			TrustXForwardedFor:  cfg.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			RetryAfter:          cfg.RetryAfter,
			AddRateLimitHeaders: cfg.AddHeaders,
			Logger:              logger,
		},
	}

	rule := domain.WindowRule{Limit: cfg.Limit, Window: cfg.Window}
	switch cfg.Algorithm {
	case "", "window":
		wopts := []infra.WindowOption{infra.WithSweepEvery(cfg.SweepEvery)}
		if cfg.MaxKeys > 0 {
			wopts = append(wopts, infra.WithMaxKeys(cfg.MaxKeys))
		}
		store, err := infra.NewWindowStore(rule, wopts...)
		if err != nil {
			return nil, err
		}
		rl.Options.Store = store
	case "redis-window":
		if rdb == nil {
			return nil, fmt.Errorf("rate limit algorithm %q needs a redis client", cfg.Algorithm)
		}
		store, err := infra.NewRedisWindowStore(rdb, rule,
			infra.WithWindowPrefix(cfg.Redis.Prefix),
			infra.WithRedisLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		rl.Options.Store = store
	case "token":
		bopts := []infra.TokenBucketOption{infra.WithBucketSweepEvery(cfg.SweepEvery)}
		if cfg.MaxKeys > 0 {
			bopts = append(bopts, infra.WithBucketMaxKeys(cfg.MaxKeys))
		}
		store, err := infra.NewTokenBucketStore(rule, bopts...)
		if err != nil {
			return nil, err
		}
		rl.Options.Store = store
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm %q", cfg.Algorithm)
	}

	switch cfg.Stats.Backend {
	case "", "none":
	case "memory":
		mem := infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys))
		rl.Options.Stats = mem
		rl.Snapshot = MemorySnapshot(mem)
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("rate limit stats backend %q needs a redis client", cfg.Stats.Backend)
		}
		rs := infra.NewRedisStatsStore(rdb,
			infra.WithStatsPrefix(cfg.Stats.Prefix),
			infra.WithStatsTTL(cfg.Stats.TTL),
			infra.WithStatsBucket(cfg.Stats.Bucket),
			infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
		)
		rl.Options.Stats = rs
		rl.Snapshot = rs.Snapshot
	default:
		return nil, fmt.Errorf("unknown rate limit stats backend %q", cfg.Stats.Backend)
	}
	return rl, nil
}

// OpenRedis connects and pings. The caller closes the client.
func OpenRedis(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// MemorySnapshot adapts a MemoryStatsStore to RateLimit.Snapshot.
func MemorySnapshot(mem *infra.MemoryStatsStore) func(context.Context) (infra.StatsSnapshot, error) {
	return func(context.Context) (infra.StatsSnapshot, error) {
		return mem.Snapshot(), nil
	}
}

func statsHandler(rl *RateLimit) envelope.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		if rl == nil || rl.Snapshot == nil {
			return envelope.New(http.StatusNotFound, "Rate limit stats are not enabled")
		}
		snap, err := rl.Snapshot(r.Context())
		if err != nil {
			return envelope.Wrap(http.StatusServiceUnavailable, "Rate limit stats unavailable", err)
		}
		writeJSON(w, http.StatusOK, snap)
		return nil
	}
}
