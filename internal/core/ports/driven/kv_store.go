package driven

import "context"

// KeyValueStore is the durable string-keyed, string-valued store on the device.
// Containers (queue, status, event log, session) are stored whole under fixed keys.
type KeyValueStore interface {
	// Get returns the value stored under key.
	// Returns domain.ErrNotFound if the key is absent.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error

	// Ping checks if the store backend is healthy
	Ping(ctx context.Context) error
}
