package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

func newTestDataService(t *testing.T) (*DataService, *EntityService, *SyncService) {
	t.Helper()
	entities, syncSvc, _ := newTestEntityService(t)
	clock := newTestClock()
	return NewDataService(DataServiceConfig{Entities: entities, Now: clock.Now}), entities, syncSvc
}

func TestDataService_ExportIncludesEveryType(t *testing.T) {
	svc, entities, _ := newTestDataService(t)
	ctx := context.Background()

	_, err := entities.Save(ctx, domain.EntityTypeJob, "j1", job{Title: "Milking"})
	require.NoError(t, err)

	export, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DataExportVersion, export.Version)
	for _, typ := range domain.EntityTypes() {
		assert.Contains(t, export.Collections, typ)
	}
	assert.Len(t, export.Collections[domain.EntityTypeJob], 1)
	assert.NotNil(t, export.Collections[domain.EntityTypeReview])
}

func TestDataService_RoundTripPreservesCounts(t *testing.T) {
	src, srcEntities, _ := newTestDataService(t)
	ctx := context.Background()

	for _, id := range []string{"j1", "j2"} {
		_, err := srcEntities.Save(ctx, domain.EntityTypeJob, id, job{Title: id})
		require.NoError(t, err)
	}
	_, err := srcEntities.Save(ctx, domain.EntityTypeUser, "u1", map[string]string{"name": "Kofi"})
	require.NoError(t, err)

	export, err := src.Export(ctx)
	require.NoError(t, err)
	payload, err := json.Marshal(export)
	require.NoError(t, err)

	dst, dstEntities, dstSync := newTestDataService(t)
	result, err := dst.Import(ctx, payload)
	require.NoError(t, err)
	assert.Equal(t, export.Counts(), result.Counts)

	counts, err := dstEntities.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[domain.EntityTypeJob])
	assert.Equal(t, 1, counts[domain.EntityTypeUser])

	record, err := dstEntities.Get(ctx, domain.EntityTypeJob, "j2")
	require.NoError(t, err)
	assert.Equal(t, domain.SyncItemPending, record.Sync.Status)

	// Imports do not produce sync traffic
	queue, err := dstSync.Queue(ctx)
	require.NoError(t, err)
	assert.Empty(t, queue.Items)
}

func TestDataService_ImportReplacesOnlyPresentCollections(t *testing.T) {
	svc, entities, _ := newTestDataService(t)
	ctx := context.Background()

	_, err := entities.Save(ctx, domain.EntityTypeJob, "old-job", job{})
	require.NoError(t, err)
	_, err = entities.Save(ctx, domain.EntityTypeUser, "keep-me", nil)
	require.NoError(t, err)

	payload := `{"version":1,"collections":{"job":[{"id":"new-job","data":{"title":"Pruning"}}]}}`
	result, err := svc.Import(ctx, []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, map[domain.EntityType]int{domain.EntityTypeJob: 1}, result.Counts)

	jobs, err := entities.List(ctx, domain.EntityTypeJob)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "new-job", jobs[0].ID)
	assert.Equal(t, domain.EntityTypeJob, jobs[0].Type)

	_, err = entities.Get(ctx, domain.EntityTypeUser, "keep-me")
	assert.NoError(t, err)
}

func TestDataService_ImportRejectsInvalidPayloads(t *testing.T) {
	svc, entities, _ := newTestDataService(t)
	ctx := context.Background()

	_, err := entities.Save(ctx, domain.EntityTypeJob, "existing", job{})
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{"version":`},
		{"missing version", `{"collections":{}}`},
		{"missing collections", `{"version":1}`},
		{"collection not an array", `{"version":1,"collections":{"job":{}}}`},
		{"record without id", `{"version":1,"collections":{"job":[{"data":{}}]}}`},
		{"empty id", `{"version":1,"collections":{"job":[{"id":"","data":{}}]}}`},
		{"bad sync status", `{"version":1,"collections":{"job":[{"id":"a","data":{},"sync":{"syncStatus":"lost"}}]}}`},
		{"future version", `{"version":99,"collections":{}}`},
		{"unknown type", `{"version":1,"collections":{"tractor":[]}}`},
		{"duplicate ids", `{"version":1,"collections":{"job":[{"id":"a","data":{}},{"id":"a","data":{}}]}}`},
		{"mismatched record type", `{"version":1,"collections":{"job":[{"id":"a","type":"user","data":{}}]}}`},
		{"valid collection before invalid one", `{"version":1,"collections":{"job":[{"id":"a","data":{}}],"tractor":[]}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Import(ctx, []byte(tt.payload))
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			_, err = entities.Get(ctx, domain.EntityTypeJob, "existing")
			assert.NoError(t, err, "rejected import must not touch stored data")
		})
	}
}
