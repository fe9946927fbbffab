package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "ctrade:ledger:rl:"

var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])

local current = redis.call("INCR", key)
if current == 1 then
  redis.call("PEXPIRE", key, window_ms)
end

local ttl = redis.call("PTTL", key)
if ttl < 0 then
  ttl = window_ms
end

if current > limit then
  return {0, ttl, current}
end
return {1, ttl, current}
`)

// RedisLimiter shares counters across ledger replicas.
type RedisLimiter struct {
	client redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

func NewRedisLimiter(client redis.Scripter, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, _ time.Time) (Decision, error) {
	windowMS := l.window.Milliseconds()
	if windowMS <= 0 {
		return Decision{}, fmt.Errorf("invalid rate limit window")
	}

	vals, err := rateLimitScript.Run(ctx, l.client, []string{l.prefix + key}, l.limit, windowMS).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("unexpected redis response")
	}
	d := Decision{Allowed: vals[0] == 1, Limit: l.limit, Remaining: max(l.limit-int(vals[2]), 0)}
	if !d.Allowed {
		d.RetryAfter = max(time.Duration(vals[1])*time.Millisecond, 0)
	}
	return d, nil
}
