package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateWindow = time.Minute

// RedisLimiter counts requests per client in fixed one-minute windows shared
// by every instance pointing at the same Redis.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	limits map[Scope]int
	now    func() time.Time
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, generalRPM int, authRPM int) *RedisLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	if generalRPM <= 0 {
		generalRPM = 100
	}
	if authRPM <= 0 {
		authRPM = 10
	}

	return &RedisLimiter{
		client: client,
		prefix: prefix,
		limits: map[Scope]int{ScopeGeneral: generalRPM, ScopeAuth: authRPM},
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, scope Scope, key string) (Decision, error) {
	if l.client == nil {
		return Decision{}, fmt.Errorf("redis client is nil")
	}
	if key == "" {
		key = "unknown"
	}

	limit, ok := l.limits[scope]
	if !ok {
		limit = l.limits[ScopeGeneral]
	}

	now := l.now()
	window := now.Truncate(rateWindow)
	storeKey := fmt.Sprintf("%s:%s:%s:%d", l.prefix, scope, key, window.Unix())

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, storeKey)
		pipe.Expire(ctx, storeKey, rateWindow+time.Second)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("redis rate limit: %w", err)
	}

	if incr.Val() > int64(limit) {
		return Decision{Allowed: false, RetryAfter: window.Add(rateWindow).Sub(now)}, nil
	}
	return Decision{Allowed: true}, nil
}
