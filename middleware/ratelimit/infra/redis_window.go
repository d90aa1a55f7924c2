package infra

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"todo-api/middleware/ratelimit/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow mirrors windowLog.Allow on a sorted set scored by unix
// milliseconds: prune only once the budget is used, never record a rejection.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local count = redis.call('ZCARD', key)
if count >= limit then
  redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
  count = redis.call('ZCARD', key)
end
if count >= limit then
  return 0
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// RedisWindowStore enforces the sliding window in Redis so that several
// instances share one budget per key. Redis errors fail open.
type RedisWindowStore struct {
	rdb     *redis.Client
	rule    domain.WindowRule
	prefix  string
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithRedisTimeout bounds each script call.
func WithRedisTimeout(d time.Duration) RedisWindowOption {
	return func(s *RedisWindowStore) { s.timeout = d }
}

func WithRedisClock(now func() time.Time) RedisWindowOption {
	return func(s *RedisWindowStore) { s.now = now }
}

func WithRedisLogger(l *slog.Logger) RedisWindowOption {
	return func(s *RedisWindowStore) { s.logger = l }
}

func NewRedisWindowStore(rdb *redis.Client, rule domain.WindowRule, opts ...RedisWindowOption) (*RedisWindowStore, error) {
	if !rule.Valid() {
		return nil, fmt.Errorf("invalid window rule: limit=%d window=%s", rule.Limit, rule.Window)
	}
	s := &RedisWindowStore{
		rdb:     rdb,
		rule:    rule,
		prefix:  "ratelimit:window",
		timeout: 250 * time.Millisecond,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RedisWindowStore) Limit() int            { return s.rule.Limit }
func (s *RedisWindowStore) Window() time.Duration { return s.rule.Window }

// Get implements domain.LimiterStore.
func (s *RedisWindowStore) Get(key domain.Key) domain.Limiter {
	return redisWindow{store: s, key: s.prefix + ":" + string(key)}
}

type redisWindow struct {
	store *RedisWindowStore
	key   string
}

func (w redisWindow) Allow() bool {
	s := w.store
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	now := s.now()
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())
	ok, err := slidingWindow.Run(ctx, s.rdb, []string{w.key},
		now.UnixMilli(), s.rule.Window.Milliseconds(), s.rule.Limit, member).Int()
	if err != nil {
		s.logger.Warn("redis rate limit unavailable, allowing request", "key", w.key, "err", err)
		return true
	}
	return ok == 1
}
