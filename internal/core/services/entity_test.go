package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven/mocks"
)

func newTestEntityService(t *testing.T) (*EntityService, *SyncService, *mocks.MockKeyValueStore) {
	t.Helper()
	store := mocks.NewMockKeyValueStore()
	clock := newTestClock()
	syncSvc := NewSyncService(SyncServiceConfig{Store: store, Now: clock.Now})
	svc := NewEntityService(EntityServiceConfig{Store: store, Sync: syncSvc, Now: clock.Now})
	return svc, syncSvc, store
}

type job struct {
	Title string `json:"title"`
	Wage  int    `json:"wage"`
}

func TestEntityService_SaveCreatesAndQueues(t *testing.T) {
	svc, syncSvc, _ := newTestEntityService(t)
	ctx := context.Background()

	record, err := svc.Save(ctx, domain.EntityTypeJob, "", job{Title: "Harvest", Wage: 40})
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, domain.EntityTypeJob, record.Type)
	assert.Equal(t, 1, record.Sync.LocalVersion)
	assert.Equal(t, domain.SyncItemPending, record.Sync.Status)

	queue, err := syncSvc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, domain.SyncActionCreate, queue.Items[0].Action)
	assert.Equal(t, domain.EntityTypeJob, queue.Items[0].Type)

	var queued domain.Record
	require.NoError(t, json.Unmarshal(queue.Items[0].Data, &queued))
	assert.Equal(t, record.ID, queued.ID)
	assert.JSONEq(t, `{"title":"Harvest","wage":40}`, string(queued.Data))

	status, err := syncSvc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PendingChanges)
}

func TestEntityService_SaveUpdatesExisting(t *testing.T) {
	svc, syncSvc, _ := newTestEntityService(t)
	ctx := context.Background()

	created, err := svc.Save(ctx, domain.EntityTypeJob, "job-1", job{Title: "Weeding"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", created.ID)

	updated, err := svc.Save(ctx, domain.EntityTypeJob, "job-1", job{Title: "Weeding", Wage: 25})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Sync.LocalVersion)

	records, err := svc.List(ctx, domain.EntityTypeJob)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.JSONEq(t, `{"title":"Weeding","wage":25}`, string(records[0].Data))

	queue, err := syncSvc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue.Items, 2)
	assert.Equal(t, domain.SyncActionCreate, queue.Items[0].Action)
	assert.Equal(t, domain.SyncActionUpdate, queue.Items[1].Action)
}

func TestEntityService_Get(t *testing.T) {
	svc, _, _ := newTestEntityService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, domain.EntityTypeUser, "u1", map[string]string{"name": "Amina"})
	require.NoError(t, err)

	record, err := svc.Get(ctx, domain.EntityTypeUser, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", record.ID)

	_, err = svc.Get(ctx, domain.EntityTypeUser, "u2")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntityService_Delete(t *testing.T) {
	svc, syncSvc, _ := newTestEntityService(t)
	ctx := context.Background()

	_, err := svc.Save(ctx, domain.EntityTypeReview, "r1", map[string]int{"stars": 5})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, domain.EntityTypeReview, "r1"))

	records, err := svc.List(ctx, domain.EntityTypeReview)
	require.NoError(t, err)
	assert.Empty(t, records)

	queue, err := syncSvc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue.Items, 2)
	assert.Equal(t, domain.SyncActionDelete, queue.Items[1].Action)
	assert.JSONEq(t, `{"id":"r1"}`, string(queue.Items[1].Data))

	err = svc.Delete(ctx, domain.EntityTypeReview, "r1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEntityService_UnknownType(t *testing.T) {
	svc, _, store := newTestEntityService(t)
	ctx := context.Background()

	_, err := svc.List(ctx, "tractor")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = svc.Save(ctx, "tractor", "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	err = svc.Delete(ctx, "tractor", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, 0, store.Writes())
}

func TestEntityService_SaveStorageFailureQueuesNothing(t *testing.T) {
	svc, syncSvc, store := newTestEntityService(t)
	ctx := context.Background()
	store.FailSet(dataKey(domain.EntityTypeJob), errDiskFull)

	_, err := svc.Save(ctx, domain.EntityTypeJob, "", job{Title: "Planting"})
	assert.ErrorIs(t, err, domain.ErrStorage)

	queue, err := syncSvc.Queue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue.Items)
}

func TestEntityService_SaveQueueFailureStoresNothing(t *testing.T) {
	svc, syncSvc, store := newTestEntityService(t)
	ctx := context.Background()
	store.FailSet(syncQueueKey, errDiskFull)

	_, err := svc.Save(ctx, domain.EntityTypeJob, "", job{Title: "Planting"})
	assert.ErrorIs(t, err, domain.ErrStorage)

	store.Heal()
	records, err := svc.List(ctx, domain.EntityTypeJob)
	require.NoError(t, err)
	assert.Empty(t, records)

	queue, err := syncSvc.Queue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue.Items)
}

func TestEntityService_SaveRetryAfterQueueFailureCreates(t *testing.T) {
	svc, syncSvc, store := newTestEntityService(t)
	ctx := context.Background()

	store.FailSet(syncQueueKey, errDiskFull)
	_, err := svc.Save(ctx, domain.EntityTypeJob, "job-1", job{Title: "Planting"})
	require.Error(t, err)

	store.Heal()
	record, err := svc.Save(ctx, domain.EntityTypeJob, "job-1", job{Title: "Planting"})
	require.NoError(t, err)
	assert.Equal(t, "job-1", record.ID)

	queue, err := syncSvc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, domain.SyncActionCreate, queue.Items[0].Action)
}

func TestEntityService_DeleteFailuresKeepRecordAndQueue(t *testing.T) {
	svc, syncSvc, store := newTestEntityService(t)
	ctx := context.Background()

	record, err := svc.Save(ctx, domain.EntityTypeJob, "", job{Title: "Weeding"})
	require.NoError(t, err)

	// Queue write fails: nothing is removed
	store.FailSet(syncQueueKey, errDiskFull)
	err = svc.Delete(ctx, domain.EntityTypeJob, record.ID)
	assert.ErrorIs(t, err, domain.ErrStorage)
	store.Heal()

	_, err = svc.Get(ctx, domain.EntityTypeJob, record.ID)
	require.NoError(t, err)
	queue, err := syncSvc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)

	// Collection write fails: the queued delete is withdrawn
	store.FailSet(dataKey(domain.EntityTypeJob), errDiskFull)
	err = svc.Delete(ctx, domain.EntityTypeJob, record.ID)
	assert.ErrorIs(t, err, domain.ErrStorage)
	store.Heal()

	_, err = svc.Get(ctx, domain.EntityTypeJob, record.ID)
	require.NoError(t, err)
	queue, err = syncSvc.Queue(ctx)
	require.NoError(t, err)
	require.Len(t, queue.Items, 1)
	assert.Equal(t, domain.SyncActionCreate, queue.Items[0].Action)

	status, err := syncSvc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.PendingChanges)
}

func TestEntityService_ConcurrentSavesAcrossInstances(t *testing.T) {
	store := &slowStore{MockKeyValueStore: mocks.NewMockKeyValueStore(), delay: time.Millisecond}
	lock := mocks.NewMockDistributedLock()
	ctx := context.Background()

	newInstance := func() *EntityService {
		syncSvc := NewSyncService(SyncServiceConfig{Store: store, Lock: lock})
		return NewEntityService(EntityServiceConfig{Store: store, Sync: syncSvc, Lock: lock})
	}
	a, b := newInstance(), newInstance()

	const perInstance = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*perInstance)
	for _, svc := range []*EntityService{a, b} {
		for i := 0; i < perInstance; i++ {
			wg.Add(1)
			go func(svc *EntityService, i int) {
				defer wg.Done()
				_, err := svc.Save(ctx, domain.EntityTypeJob, "", job{Title: "Harvest", Wage: i})
				errs <- err
			}(svc, i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := a.List(ctx, domain.EntityTypeJob)
	require.NoError(t, err)
	assert.Len(t, records, 2*perInstance)

	queue, err := NewSyncService(SyncServiceConfig{Store: store}).Queue(ctx)
	require.NoError(t, err)
	assert.Len(t, queue.Items, 2*perInstance)
}

func TestEntityService_Counts(t *testing.T) {
	svc, _, _ := newTestEntityService(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := svc.Save(ctx, domain.EntityTypeWorkOrder, id, map[string]string{"id": id})
		require.NoError(t, err)
	}
	_, err := svc.Save(ctx, domain.EntityTypeUser, "u", nil)
	require.NoError(t, err)

	counts, err := svc.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.EntityTypeWorkOrder])
	assert.Equal(t, 1, counts[domain.EntityTypeUser])
	assert.Equal(t, 0, counts[domain.EntityTypeJob])
	assert.Contains(t, counts, domain.EntityTypeReview)
}
