package token

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshKeyPrefix = "itflow:refresh:"

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Save(ctx context.Context, jti string, userID int64, ttl time.Duration) error {
	return r.client.Set(ctx, refreshKeyPrefix+jti, userID, ttl).Err()
}

func (r *RedisStore) Take(ctx context.Context, jti string) (bool, error) {
	n, err := r.client.Del(ctx, refreshKeyPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisStore) Revoke(ctx context.Context, jti string) error {
	return r.client.Del(ctx, refreshKeyPrefix+jti).Err()
}
