package driven

import (
	"context"
	"time"
)

// DistributedLock coordinates queue drains across processes sharing one store.
// Only the holder of the drain lock pushes queued mutations.
type DistributedLock interface {
	// Acquire attempts to take the named lock for ttl.
	// Returns false without error if another holder has it.
	Acquire(ctx context.Context, name string, ttl time.Duration) (acquired bool, err error)

	// Release gives up the named lock. Safe to call when not held.
	Release(ctx context.Context, name string) error

	// Extend pushes the expiry of a lock this instance holds.
	// Backends without TTL treat it as a no-op.
	Extend(ctx context.Context, name string, ttl time.Duration) error

	// Ping checks if the lock backend is healthy
	Ping(ctx context.Context) error
}
