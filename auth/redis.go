package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the token under a single key. A zero TTL keeps it
// until it is deleted.
type RedisBackend struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisBackend(client *redis.Client, key string, ttl time.Duration) *RedisBackend {
	if client == nil {
		panic("auth.NewRedisBackend: redis client is nil")
	}
	if key == "" {
		key = "taskdesk:token"
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisBackend{client: client, key: key, ttl: ttl}
}

func (r *RedisBackend) Load(ctx context.Context) (string, error) {
	token, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

func (r *RedisBackend) Store(ctx context.Context, token string) error {
	return r.client.Set(ctx, r.key, token, r.ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
