package token

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

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	s := NewRedisStore(client)
	jti := uuid.NewString()

	require.NoError(t, s.Save(ctx, jti, 5, time.Minute))

	ttl, err := client.TTL(ctx, refreshKeyPrefix+jti).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	ok, err := s.Take(ctx, jti)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Take(ctx, jti)
	require.NoError(t, err)
	assert.False(t, ok, "second take must miss")

	other := uuid.NewString()
	require.NoError(t, s.Save(ctx, other, 5, time.Minute))
	require.NoError(t, s.Revoke(ctx, other))
	ok, err = s.Take(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)
}
