package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow corre atómico en redis: evict, count, add.
// ARGV: now_ms, window_ms, limit, member.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', '(' .. (now - window))
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, count + 1, 0}
end

local retry = window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  retry = tonumber(oldest[2]) + window - now
end
return {0, count, retry}
`)

// RedisLimiter comparte la ventana entre réplicas con un ZSET por clave
// (score = timestamp en ms).
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisLimiter{client: client, prefix: prefix, window: window, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if limit <= 0 {
		return Result{}, ErrInvalidLimit
	}
	now := l.now().UnixMilli()
	out, err := slidingWindow.Run(ctx, l.client, []string{l.prefix + key},
		now, l.window.Milliseconds(), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate: redis: %w", err)
	}
	if len(out) != 3 {
		return Result{}, fmt.Errorf("rate: redis: unexpected reply %v", out)
	}
	res := Result{
		Allowed:     out[0] == 1,
		Limit:       limit,
		CurrentHits: int(out[1]),
	}
	if res.Allowed {
		res.Remaining = limit - res.CurrentHits
	} else {
		res.RetryAfter = time.Duration(out[2]) * time.Millisecond
		if res.RetryAfter <= 0 {
			res.RetryAfter = time.Millisecond
		}
	}
	return res, nil
}
