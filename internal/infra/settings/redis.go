package settings

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"voice-companion/internal/application"
)

// RedisRepository keeps settings blobs in Redis under prefix:key without
// expiry.
type RedisRepository struct {
	client *redis.Client
	prefix string
}

type RedisOption func(*RedisRepository)

// WithPrefix sets the key prefix. Default is "voice-companion".
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisRepository) {
		r.prefix = prefix
	}
}

func NewRedisRepository(client *redis.Client, opts ...RedisOption) *RedisRepository {
	r := &RedisRepository{client: client, prefix: "voice-companion"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisRepository) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, application.ErrSettingsNotFound
		}
		return nil, fmt.Errorf("reading %s from redis: %w", key, err)
	}
	return data, nil
}

func (r *RedisRepository) Put(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.redisKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("writing %s to redis: %w", key, err)
	}
	return nil
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func (r *RedisRepository) redisKey(key string) string {
	if r.prefix == "" {
		return key
	}
	return r.prefix + ":" + key
}
