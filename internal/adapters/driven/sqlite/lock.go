package sqlite

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.DistributedLock = (*Lock)(nil)

// Lock implements DistributedLock on the locks table of the store's file, so
// processes sharing one database file can take turns. A row whose expires_at
// has passed is free. Rows carry the owner ID so one process cannot release
// or extend another's lock.
type Lock struct {
	store   *Store
	ownerID string
	now     func() time.Time
}

// NewLock creates a lock over the database behind store.
func NewLock(store *Store) *Lock {
	hostname, _ := os.Hostname()
	return &Lock{
		store:   store,
		ownerID: fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), uuid.NewString()),
		now:     time.Now,
	}
}

// OwnerID returns the value written to rows this instance holds
func (l *Lock) OwnerID() string {
	return l.ownerID
}

// Acquire inserts the lock row, or takes it over once expired. Returns false
// if anyone holds it, this instance included.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	now := l.now()
	query := `
		INSERT INTO locks (name, owner, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			owner = excluded.owner,
			expires_at = excluded.expires_at
		WHERE locks.expires_at <= ?
	`
	res, err := l.store.db.ExecContext(ctx, query, name, l.ownerID, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return n == 1, nil
}

// Release deletes the row if this instance owns it.
func (l *Lock) Release(ctx context.Context, name string) error {
	if _, err := l.store.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND owner = ?`, name, l.ownerID); err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}

// Extend pushes the expiry of an unexpired lock this instance owns.
func (l *Lock) Extend(ctx context.Context, name string, ttl time.Duration) error {
	now := l.now()
	res, err := l.store.db.ExecContext(ctx,
		`UPDATE locks SET expires_at = ? WHERE name = ? AND owner = ? AND expires_at > ?`,
		now.Add(ttl).UnixMilli(), name, l.ownerID, now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("extend lock %s: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("lock %s not held by this instance", name)
	}
	return nil
}

func (l *Lock) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}
