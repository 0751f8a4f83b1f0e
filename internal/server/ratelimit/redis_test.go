package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a live server: REDIS_ADDR=localhost:6379 go test ./...
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client, err := NewRedisClient(context.Background(), &redis.Options{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisLimiter(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLimiter(client, "test-"+uuid.NewString(), 500*time.Millisecond)

	for i := 1; i <= 3; i++ {
		n, err := l.Hit(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	ttl, err := client.PTTL(ctx, l.key("k")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	c, err := l.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 3, c)

	time.Sleep(700 * time.Millisecond)
	c, err = l.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, c)

	_, err = l.Hit(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, l.Reset(ctx, "k"))
	c, err = l.Count(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, 0, c)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	_, err := NewRedisClient(context.Background(), &redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	require.Error(t, err)
}
