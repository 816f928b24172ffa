package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "quizservice:collection:"

// RedisKV stores each collection as a single Redis string value, overwritten
// in full on every save.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Load(ctx context.Context, collection string) ([]byte, error) {
	data, err := r.client.Get(ctx, redisKeyPrefix+collection).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", ErrStorageUnavailable, collection, err)
	}
	return data, nil
}

func (r *RedisKV) Save(ctx context.Context, collection string, data []byte) error {
	if err := r.client.Set(ctx, redisKeyPrefix+collection, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: save %s: %v", ErrStorageUnavailable, collection, err)
	}
	return nil
}
