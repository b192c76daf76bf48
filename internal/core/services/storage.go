package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

// Persisted keys. Every container is stored whole under one key.
const (
	keyPrefix = "@agrolink/"

	syncStatusKey      = keyPrefix + "sync_status"
	syncQueueKey       = keyPrefix + "sync_queue"
	syncDeadLetterKey  = keyPrefix + "sync_dead_letter"
	analyticsEventsKey = keyPrefix + "analytics_events"
	analyticsCurrent   = keyPrefix + "analytics_session"
	analyticsHistory   = keyPrefix + "analytics_sessions"
	cloudConfigKey     = keyPrefix + "cloud_sync_config"
	dataKeyPrefix      = keyPrefix + "data/"
)

func dataKey(t domain.EntityType) string {
	return dataKeyPrefix + string(t)
}

// loadJSON decodes the value under key into v.
// Returns false with no error if the key is absent.
func loadJSON(ctx context.Context, store driven.KeyValueStore, key string, v any) (bool, error) {
	raw, err := store.Get(ctx, key)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, domain.NewStorageError("get", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, domain.NewStorageError("decode", key, err)
	}
	return true, nil
}

// saveJSON encodes v and stores it under key
func saveJSON(ctx context.Context, store driven.KeyValueStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.NewStorageError("encode", key, err)
	}
	if err := store.Set(ctx, key, string(data)); err != nil {
		return domain.NewStorageError("set", key, err)
	}
	return nil
}

// removeKey deletes key from the store
func removeKey(ctx context.Context, store driven.KeyValueStore, key string) error {
	if err := store.Remove(ctx, key); err != nil {
		return domain.NewStorageError("remove", key, err)
	}
	return nil
}
