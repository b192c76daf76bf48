package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

// setupTestDB connects to AGROLINK_TEST_DATABASE_URL or skips the test
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("AGROLINK_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AGROLINK_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Connect(ctx, DefaultConfig(url))
	require.NoError(t, err)
	require.NoError(t, db.InitSchema(ctx))
	t.Cleanup(func() { db.Close() })
	return db
}

func TestHashLockName(t *testing.T) {
	a := hashLockName("sync-drain")
	assert.Equal(t, a, hashLockName("sync-drain"))
	assert.NotEqual(t, a, hashLockName("sync-drain-2"))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("postgres://localhost/agrolink")
	assert.Equal(t, "postgres://localhost/agrolink", cfg.URL)
	assert.Greater(t, cfg.MaxOpenConns, cfg.MaxIdleConns)
}

func TestKVStore(t *testing.T) {
	db := setupTestDB(t)
	ns := "test-" + time.Now().Format("150405.000000")
	store := NewKVStore(db, ns)
	other := NewKVStore(db, ns+"-other")
	ctx := context.Background()

	_, err := store.Get(ctx, "@agrolink/sync_queue")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Set(ctx, "@agrolink/sync_queue", `{"items":[]}`))
	require.NoError(t, store.Set(ctx, "@agrolink/sync_queue", `{"items":[{"id":"a"}]}`))

	value, err := store.Get(ctx, "@agrolink/sync_queue")
	require.NoError(t, err)
	assert.Equal(t, `{"items":[{"id":"a"}]}`, value)

	_, err = other.Get(ctx, "@agrolink/sync_queue")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Remove(ctx, "@agrolink/sync_queue"))
	require.NoError(t, store.Remove(ctx, "@agrolink/sync_queue"))
	_, err = store.Get(ctx, "@agrolink/sync_queue")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdvisoryLock(t *testing.T) {
	db := setupTestDB(t)
	lock1 := NewAdvisoryLock(db)
	lock2 := NewAdvisoryLock(db)
	ctx := context.Background()
	name := "test-" + time.Now().Format("150405.000000")

	acquired, err := lock1.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	acquired, err = lock1.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "not reentrant")

	acquired, err = lock2.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired)

	assert.NoError(t, lock1.Extend(ctx, name, time.Minute))
	assert.Error(t, lock2.Extend(ctx, name, time.Minute))

	require.NoError(t, lock1.Release(ctx, name))
	require.NoError(t, lock1.Release(ctx, name))

	acquired, err = lock2.Acquire(ctx, name, time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, lock2.Release(ctx, name))
}
