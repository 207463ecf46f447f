package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "metas:ratelimit"

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisLimiter shares one fixed window per key across every API instance.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisClient opens a client for a redis:// or rediss:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

func NewRedisLimiter(client redis.UniversalClient, requestsPerMinute int) *RedisLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	return &RedisLimiter{
		client: client,
		prefix: defaultPrefix,
		limit:  requestsPerMinute,
		window: time.Minute,
	}
}

func (l *RedisLimiter) key(key string) string {
	return l.prefix + ":" + strings.TrimSpace(key)
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := fixedWindowScript.Run(ctx, l.client, []string{l.key(key)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return n <= int64(l.limit), nil
}

// Ping checks the Redis connection for readiness probes.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
