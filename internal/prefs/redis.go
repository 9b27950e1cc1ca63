package prefs

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps preferences as plain redis string keys under a prefix.
type RedisStore struct {
	client   *redis.Client
	prefix   string
	maxBytes int
}

type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore dials a new client.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(rdb, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client:   client,
		prefix:   "instant-ai:prefs:",
		maxBytes: DefaultMaxValueBytes,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

// GetString returns the stored value, or ok=false if the key is missing.
func (s *RedisStore) GetString(ctx context.Context, key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}

	val, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// SetString stores a value without expiry.
func (s *RedisStore) SetString(ctx context.Context, key, value string) error {
	if err := checkWrite(key, value, s.maxBytes); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Writer = (*RedisStore)(nil)
