package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/layer-3/sentinel/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by RedisStore.
const DefaultPrefix = "sentinel:"

// RedisStore is a Redis implementation of the Store interface
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client, prefix string) ports.Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}

	return &RedisStore{
		client: client,
		prefix: prefix,
	}
}

// Get reads key from Redis
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return data, true, nil
}

// Set writes key without expiration
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

// Remove deletes key from Redis
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}

	return nil
}
