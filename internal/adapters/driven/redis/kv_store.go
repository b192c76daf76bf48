package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.KeyValueStore = (*KVStore)(nil)

// KVStore implements driven.KeyValueStore on plain Redis strings.
// Keys are stored as "<namespace>:<key>" without expiry.
type KVStore struct {
	client    redis.UniversalClient
	namespace string
}

// NewKVStore creates a Redis-backed KVStore. An empty namespace uses DefaultNamespace.
func NewKVStore(client redis.UniversalClient, namespace string) *KVStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &KVStore{client: client, namespace: namespace}
}

func (s *KVStore) key(k string) string {
	return s.namespace + ":" + k
}

// Get returns domain.ErrNotFound when the key does not exist
func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Remove deletes key. Missing keys are not an error.
func (s *KVStore) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
