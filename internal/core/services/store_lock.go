package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

const (
	// DefaultStoreLockTTL bounds how long a crashed process can block the others
	DefaultStoreLockTTL = 10 * time.Second

	// DefaultStoreLockWait is how long a mutation waits for another process
	// before failing with ErrStorage
	DefaultStoreLockWait = 10 * time.Second

	storeLockMinBackoff = 2 * time.Millisecond
	storeLockMaxBackoff = 50 * time.Millisecond
)

// Store lock names, one per service. EntityService enqueues while holding
// entityLockName, so locks are always taken entities first, then sync state.
const (
	syncLockName      = "sync-state"
	analyticsLockName = "analytics"
	entityLockName    = "entities"
)

// storeGuard serializes read-modify-write cycles on whole containers across
// processes sharing one store. Callers hold the service mutex first; the
// guard only arbitrates between processes. A nil lock disables it.
type storeGuard struct {
	lock   driven.DistributedLock
	name   string
	ttl    time.Duration
	wait   time.Duration
	logger *slog.Logger
}

func newStoreGuard(lock driven.DistributedLock, name string, ttl, wait time.Duration, logger *slog.Logger) storeGuard {
	if ttl <= 0 {
		ttl = DefaultStoreLockTTL
	}
	if wait <= 0 {
		wait = DefaultStoreLockWait
	}
	return storeGuard{lock: lock, name: name, ttl: ttl, wait: wait, logger: logger}
}

func (g storeGuard) enabled() bool {
	return g.lock != nil
}

// acquire polls the lock with capped exponential backoff until it is held,
// ctx is done or the wait runs out. The returned func releases it.
func (g storeGuard) acquire(ctx context.Context) (func(), error) {
	if g.lock == nil {
		return func() {}, nil
	}

	deadline := time.NewTimer(g.wait)
	defer deadline.Stop()

	backoff := storeLockMinBackoff
	for {
		ok, err := g.lock.Acquire(ctx, g.name, g.ttl)
		if err != nil {
			return nil, domain.NewStorageError("lock", g.name, err)
		}
		if ok {
			return func() { g.release(ctx) }, nil
		}

		retry := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			retry.Stop()
			return nil, ctx.Err()
		case <-deadline.C:
			retry.Stop()
			return nil, fmt.Errorf("%w: timed out waiting for %s lock", domain.ErrStorage, g.name)
		case <-retry.C:
		}
		backoff = min(backoff*2, storeLockMaxBackoff)
	}
}

// release runs even when ctx is cancelled; otherwise the lock would sit
// until its TTL expires.
func (g storeGuard) release(ctx context.Context) {
	if err := g.lock.Release(context.WithoutCancel(ctx), g.name); err != nil {
		g.logger.Warn("failed to release store lock", "lock", g.name, "error", err)
	}
}
