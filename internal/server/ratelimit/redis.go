package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter stores windows as expiring Redis counters so every server
// instance sees the same counts.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	window time.Duration
}

// NewRedisClient connects and verifies the connection.
func NewRedisClient(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

func NewRedisLimiter(client redis.UniversalClient, prefix string, w time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, window: w}
}

func (l *RedisLimiter) key(k string) string {
	return "ratelimit:" + l.prefix + ":" + k
}

// Hit creates the counter with its expiry only if it does not exist, then
// increments it, both inside one MULTI block.
func (l *RedisLimiter) Hit(ctx context.Context, key string) (int, error) {
	k := l.key(key)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, k, 0, l.window)
		incr = pipe.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rate limit hit: %w", err)
	}
	return int(incr.Val()), nil
}

func (l *RedisLimiter) Count(ctx context.Context, key string) (int, error) {
	n, err := l.client.Get(ctx, l.key(key)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("rate limit count: %w", err)
	}
	return n, nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}
