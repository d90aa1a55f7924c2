package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"todo-api/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore accumulates counters in Redis hashes shared by every
// instance:
//
//	<prefix>:total            allowed/denied, never expires
//	<prefix>:<bucket>:<stamp> per-minute or per-hour series, expires after ttl
//	<prefix>:route            "<method> <path>:<allowed|denied>"
//	<prefix>:key:<key>        per-client counters when trackKeys is set
type RedisStatsStore struct {
	rdb *redis.Client

	prefix    string
	ttl       time.Duration
	bucket    string
	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		if p := strings.Trim(prefix, ":"); p != "" {
			s.prefix = p
		}
	}
}

// WithStatsTTL bounds the lifetime of series and per-client hashes.
func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

// WithStatsBucket picks the series granularity: "minute", "hour" or "none".
func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// bucketKey names the series hash for at, or "" when series are off.
func (s *RedisStatsStore) bucketKey(at time.Time) string {
	switch s.bucket {
	case "minute":
		return s.prefix + ":minute:" + at.UTC().Format("200601021504")
	case "hour":
		return s.prefix + ":hour:" + at.UTC().Format("2006010215")
	default:
		return ""
	}
}

// Record increments every counter the event touches in one pipeline.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := outcomeField(ev.Allowed)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)
	if key := s.bucketKey(at); key != "" {
		s.incrExpiring(ctx, pipe, key, field)
	}
	if route := routeOf(ev); route != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", route+":"+field, 1)
	}
	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			s.incrExpiring(ctx, pipe, s.prefix+":key:"+k, field)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit stats: %w", err)
	}
	return nil
}

func (s *RedisStatsStore) incrExpiring(ctx context.Context, pipe redis.Pipeliner, key, field string) {
	pipe.HIncrBy(ctx, key, field, 1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// Snapshot reads the counters back in the shape MemoryStatsStore reports.
// Per-client counters are only listed when trackKeys is set.
func (s *RedisStatsStore) Snapshot(ctx context.Context) (StatsSnapshot, error) {
	snap := StatsSnapshot{ByRoute: map[string]Counters{}}
	if s == nil || s.rdb == nil {
		return snap, nil
	}

	total, err := s.rdb.HGetAll(ctx, s.prefix+":total").Result()
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("read rate limit totals: %w", err)
	}
	snap.Total = countersFrom(total)

	routes, err := s.rdb.HGetAll(ctx, s.prefix+":route").Result()
	if err != nil {
		return StatsSnapshot{}, fmt.Errorf("read rate limit routes: %w", err)
	}
	for field, raw := range routes {
		route, outcome, ok := cutLast(field, ":")
		if !ok {
			continue
		}
		c := snap.ByRoute[route]
		c.set(outcome, raw)
		snap.ByRoute[route] = c
	}

	if !s.trackKeys {
		return snap, nil
	}
	snap.ByKey = map[string]Counters{}
	keyPrefix := s.prefix + ":key:"
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		fields, err := s.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return StatsSnapshot{}, fmt.Errorf("read rate limit key %s: %w", iter.Val(), err)
		}
		snap.ByKey[strings.TrimPrefix(iter.Val(), keyPrefix)] = countersFrom(fields)
	}
	if err := iter.Err(); err != nil {
		return StatsSnapshot{}, fmt.Errorf("scan rate limit keys: %w", err)
	}
	return snap, nil
}

func outcomeField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func routeOf(ev domain.StatsEvent) string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
}

func countersFrom(fields map[string]string) Counters {
	var c Counters
	for outcome, raw := range fields {
		c.set(outcome, raw)
	}
	return c
}

func (c *Counters) set(outcome, raw string) {
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	switch outcome {
	case "allowed":
		c.Allowed = n
	case "denied":
		c.Denied = n
	}
}

func cutLast(s, sep string) (before, after string, ok bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
