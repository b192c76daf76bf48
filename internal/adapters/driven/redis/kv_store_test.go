package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

func TestKVStore_GetMissing(t *testing.T) {
	client, _ := setupTestRedis(t)
	store := NewKVStore(client, "")

	_, err := store.Get(context.Background(), "@agrolink/sync_queue")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestKVStore_SetGetRemove(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewKVStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "@agrolink/sync_status", `{"pendingChanges":2}`))

	value, err := store.Get(ctx, "@agrolink/sync_status")
	require.NoError(t, err)
	assert.Equal(t, `{"pendingChanges":2}`, value)

	raw, err := mr.Get("agrolink:@agrolink/sync_status")
	require.NoError(t, err)
	assert.Equal(t, value, raw)
	assert.Zero(t, mr.TTL("agrolink:@agrolink/sync_status"))

	require.NoError(t, store.Set(ctx, "@agrolink/sync_status", `{"pendingChanges":0}`))
	value, err = store.Get(ctx, "@agrolink/sync_status")
	require.NoError(t, err)
	assert.Equal(t, `{"pendingChanges":0}`, value)

	require.NoError(t, store.Remove(ctx, "@agrolink/sync_status"))
	_, err = store.Get(ctx, "@agrolink/sync_status")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Removing again is fine
	assert.NoError(t, store.Remove(ctx, "@agrolink/sync_status"))
}

func TestKVStore_NamespacesAreIsolated(t *testing.T) {
	client, _ := setupTestRedis(t)
	a := NewKVStore(client, "farm-a")
	b := NewKVStore(client, "farm-b")
	ctx := context.Background()

	require.NoError(t, a.Set(ctx, "k", "from-a"))

	_, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	value, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "from-a", value)
}

func TestKVStore_BackendDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	store := NewKVStore(client, "")
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	mr.Close()

	_, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Error(t, store.Set(ctx, "k", "v"))
	assert.Error(t, store.Ping(ctx))
}

func TestConnect(t *testing.T) {
	_, mr := setupTestRedis(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer client.Close()

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}
