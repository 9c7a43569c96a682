package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "accumulator:snapshot:"

// RedisStore shares entries between server replicas. Each family is a single
// string key holding the JSON entry, so replacement is atomic.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl keeps entries until
// they are replaced.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Name() string { return "redis" }

func redisKey(key Key) string {
	return redisKeyPrefix + key.String()
}

func (s *RedisStore) Get(ctx context.Context, key Key) (*Entry, bool, error) {
	data, err := s.client.Get(ctx, redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &e, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key Key, e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	return s.client.Set(ctx, redisKey(key), data, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	return s.client.Del(ctx, redisKey(key)).Err()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
