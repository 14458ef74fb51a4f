package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "timecard:ratelimit:"

// fixedWindowScript increments the counter and starts its window on the first
// hit. A counter that lost its TTL is given one again.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if current == 1 or ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter shares fixed-window counters between service replicas.
type RedisLimiter struct {
	client redis.UniversalClient
}

// NewRedisLimiter wraps an existing client.
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client}
}

// Allow records a hit for key.
func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	res, errRun := fixedWindowScript.Run(ctx, l.client, []string{redisKeyPrefix + key}, rule.Window.Milliseconds()).Int64Slice()
	if errRun != nil {
		return Decision{}, fmt.Errorf("ratelimit: redis script: %w", errRun)
	}
	if len(res) != 2 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected redis reply %v", res)
	}
	return decide(res[0], rule, time.Duration(res[1])*time.Millisecond), nil
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
