// Package ratelimit throttles unauthenticated and polling endpoints with
// fixed-window counters kept in process memory or in Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/timecard-works/timecard/internal/config"
)

// Endpoint classes.
const (
	ClassAdminLogin     = "admin_login"
	ClassInstanceStatus = "instance_status"
	ClassClaimToken     = "claim_token"
	ClassRegister       = "register"
	ClassPortalLogin    = "portal_login"
)

// Rule allows Limit hits per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// RuleFrom converts a configured limit.
func RuleFrom(cfg config.LimitRule) Rule {
	return Rule{Limit: cfg.Limit, Window: cfg.Window}
}

// Decision is the outcome of one hit.
type Decision struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the time left in the current window when the hit was rejected.
	RetryAfter time.Duration
}

// Limiter counts hits per key.
type Limiter interface {
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
}

// New builds the limiter selected by cfg.Backend.
func New(ctx context.Context, cfg config.RateLimitConfig) (Limiter, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryLimiter(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if errPing := client.Ping(ctx).Err(); errPing != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ratelimit: redis ping %s: %w", cfg.Redis.Addr, errPing)
		}
		return NewRedisLimiter(client), nil
	default:
		return nil, fmt.Errorf("ratelimit: unknown backend %q", cfg.Backend)
	}
}

func decide(count int64, rule Rule, left time.Duration) Decision {
	if count > int64(rule.Limit) {
		if left <= 0 {
			left = rule.Window
		}
		return Decision{Allowed: false, RetryAfter: left}
	}
	return Decision{Allowed: true, Remaining: rule.Limit - int(count)}
}
