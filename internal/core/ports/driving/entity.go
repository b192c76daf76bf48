package driving

import (
	"context"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

// EntityService stores marketplace entities locally and queues their mutations
type EntityService interface {
	// List returns all records of a type
	List(ctx context.Context, entityType domain.EntityType) ([]*domain.Record, error)

	// Get returns one record. Returns domain.ErrNotFound if absent.
	Get(ctx context.Context, entityType domain.EntityType, id string) (*domain.Record, error)

	// Save creates or updates a record and queues the mutation
	Save(ctx context.Context, entityType domain.EntityType, id string, data any) (*domain.Record, error)

	// Delete removes a record and queues the deletion
	Delete(ctx context.Context, entityType domain.EntityType, id string) error

	// Counts returns the number of records per entity type
	Counts(ctx context.Context) (map[domain.EntityType]int, error)
}

// DataService exports and imports the local entity collections
type DataService interface {
	// Export dumps every registered collection
	Export(ctx context.Context) (*domain.DataExport, error)

	// Import validates payload and replaces the collections it contains
	Import(ctx context.Context, payload []byte) (*domain.ImportResult, error)
}

// CloudConfigService manages the remote endpoint configuration
type CloudConfigService interface {
	// Get returns the stored config. Returns domain.ErrNotConfigured if none.
	Get(ctx context.Context) (*domain.CloudSyncConfig, error)

	// Save validates and stores cfg
	Save(ctx context.Context, cfg *domain.CloudSyncConfig) error

	// Clear removes the stored config
	Clear(ctx context.Context) error
}
