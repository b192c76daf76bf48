package driving

import (
	"context"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

// SyncFunc transmits one queued mutation to the remote system.
// Returning false or an error leaves the item queued.
type SyncFunc func(ctx context.Context, item *domain.SyncQueueItem) (bool, error)

// SyncService manages the offline mutation queue and its status record
type SyncService interface {
	// Status returns the persisted status, or the default if none is stored.
	// On a read failure the default is returned together with the error.
	Status(ctx context.Context) (*domain.SyncStatus, error)

	// UpdateStatus merges patch into the stored status
	UpdateStatus(ctx context.Context, patch domain.SyncStatusPatch) (*domain.SyncStatus, error)

	// Queue returns the persisted queue, or an empty one if none is stored
	Queue(ctx context.Context) (*domain.SyncQueue, error)

	// Enqueue appends a mutation and updates the pending count
	Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.SyncQueueItem, error)

	// Remove drops the item with the given id from the queue
	Remove(ctx context.Context, itemID string) error

	// Clear empties the queue and zeroes the pending count
	Clear(ctx context.Context) error

	// Process drains a snapshot of the queue through fn, in order
	Process(ctx context.Context, fn SyncFunc) (*domain.DrainResult, error)

	// DeadLetters lists items abandoned after exhausting their retries
	DeadLetters(ctx context.Context) ([]*domain.SyncQueueItem, error)

	// RequeueDeadLetters moves abandoned items back to the queue with a reset retry count
	RequeueDeadLetters(ctx context.Context) (int, error)
}
