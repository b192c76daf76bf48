package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.KeyValueStore = (*KVStore)(nil)

// DefaultNamespace partitions rows when none is configured
const DefaultNamespace = "agrolink"

// KVStore implements driven.KeyValueStore on the kv_store table.
// Several clients can share one database by using distinct namespaces.
type KVStore struct {
	db        *DB
	namespace string
}

// NewKVStore creates a new KVStore. Call DB.InitSchema first.
func NewKVStore(db *DB, namespace string) *KVStore {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &KVStore{db: db, namespace: namespace}
}

func (s *KVStore) Get(ctx context.Context, key string) (string, error) {
	query := `SELECT value FROM kv_store WHERE namespace = $1 AND key = $2`

	var value string
	err := s.db.QueryRowContext(ctx, query, s.namespace, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("select %s: %w", key, err)
	}
	return value, nil
}

func (s *KVStore) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO kv_store (namespace, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (namespace, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, s.namespace, key, value); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Remove(ctx context.Context, key string) error {
	query := `DELETE FROM kv_store WHERE namespace = $1 AND key = $2`
	if _, err := s.db.ExecContext(ctx, query, s.namespace, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *KVStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
