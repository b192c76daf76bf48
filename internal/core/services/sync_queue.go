package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.SyncService = (*SyncService)(nil)

// DefaultMaxRetries is the number of failed attempts after which an item is
// moved to the dead-letter list.
const DefaultMaxRetries = 5

// errRejected is recorded when the sync func returns false without an error
var errRejected = errors.New("rejected by remote")

// SyncService owns the sync status record, the sync queue and the dead-letter
// list. All three are read and written whole; mu serializes every
// read-modify-write within the process and, when a lock is configured, guard
// serializes them across processes sharing the store.
type SyncService struct {
	store       driven.KeyValueStore
	logger      *slog.Logger
	maxRetries  int
	itemTimeout time.Duration
	now         func() time.Time
	guard       storeGuard

	mu       sync.Mutex
	draining atomic.Bool
}

// SyncServiceConfig holds dependencies for SyncService.
type SyncServiceConfig struct {
	Store  driven.KeyValueStore
	Logger *slog.Logger

	// MaxRetries abandons an item after this many failed attempts.
	// Zero uses DefaultMaxRetries; a negative value never abandons.
	MaxRetries int

	// ItemTimeout bounds each sync func call. Zero means no timeout.
	ItemTimeout time.Duration

	// Lock guards every container mutation across processes. Leave nil when
	// the store is private to this process.
	Lock     driven.DistributedLock
	LockTTL  time.Duration // Default: DefaultStoreLockTTL
	LockWait time.Duration // Default: DefaultStoreLockWait

	// Now overrides the clock (tests)
	Now func() time.Time
}

// NewSyncService creates a new SyncService.
func NewSyncService(cfg SyncServiceConfig) *SyncService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SyncService{
		store:       cfg.Store,
		logger:      logger,
		maxRetries:  maxRetries,
		itemTimeout: cfg.ItemTimeout,
		now:         now,
		guard:       newStoreGuard(cfg.Lock, syncLockName, cfg.LockTTL, cfg.LockWait, logger),
	}
}

// Status returns the persisted status or the default.
// A failed read returns the default together with the error.
func (s *SyncService) Status(ctx context.Context) (*domain.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadStatus(ctx)
}

// UpdateStatus merges patch into the stored status and persists it.
// Nothing is written if the current status cannot be read.
func (s *SyncService) UpdateStatus(ctx context.Context, patch domain.SyncStatusPatch) (*domain.SyncStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	status, err := s.loadStatus(ctx)
	if err != nil {
		return nil, err
	}
	patch.Apply(status)
	if err := saveJSON(ctx, s.store, syncStatusKey, status); err != nil {
		s.logger.Warn("failed to save sync status", "error", err)
		return nil, err
	}
	return status, nil
}

// Queue returns the persisted queue or an empty one.
// A failed read returns the empty queue together with the error.
func (s *SyncService) Queue(ctx context.Context) (*domain.SyncQueue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadQueue(ctx)
}

// Enqueue appends a mutation with a fresh id and updates the pending count.
// The queue and the status are two separate writes; if the status write
// fails the count stays stale until the next queue mutation rewrites it.
func (s *SyncService) Enqueue(ctx context.Context, req domain.EnqueueRequest) (*domain.SyncQueueItem, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var data json.RawMessage
	if req.Data != nil {
		encoded, err := json.Marshal(req.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %v", domain.ErrInvalidInput, err)
		}
		data = encoded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return nil, err
	}

	item := &domain.SyncQueueItem{
		ID:         domain.GenerateID(),
		Type:       req.Type,
		Action:     req.Action,
		Data:       data,
		CreatedAt:  s.now(),
		RetryCount: 0,
	}
	queue.Items = append(queue.Items, item)

	if err := saveJSON(ctx, s.store, syncQueueKey, queue); err != nil {
		return nil, err
	}
	s.writePendingLocked(ctx, queue.Len())

	s.logger.Debug("queued mutation",
		"item_id", item.ID,
		"type", item.Type,
		"action", item.Action,
		"pending", queue.Len(),
	)

	return item.Clone(), nil
}

// Remove drops itemID from the queue. Unknown ids are not an error.
func (s *SyncService) Remove(ctx context.Context, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	queue.Items = queue.Without(itemID)
	queue.LastProcessed = &now

	if err := saveJSON(ctx, s.store, syncQueueKey, queue); err != nil {
		return err
	}
	s.writePendingLocked(ctx, queue.Len())
	return nil
}

// Clear empties the queue regardless of its prior state.
func (s *SyncService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	now := s.now()
	queue := domain.NewSyncQueue()
	queue.LastProcessed = &now

	if err := saveJSON(ctx, s.store, syncQueueKey, queue); err != nil {
		return err
	}
	s.writePendingLocked(ctx, 0)

	s.logger.Info("sync queue cleared")
	return nil
}

// DeadLetters lists items abandoned after MaxRetries failures.
func (s *SyncService) DeadLetters(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadDeadLetters(ctx)
}

// RequeueDeadLetters appends every dead letter to the queue with its retry
// count reset and empties the dead-letter list.
func (s *SyncService) RequeueDeadLetters(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer unlock()

	dead, err := s.loadDeadLetters(ctx)
	if err != nil {
		return 0, err
	}
	if len(dead) == 0 {
		return 0, nil
	}

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return 0, err
	}
	for _, item := range dead {
		item.RetryCount = 0
		item.LastError = ""
		queue.Items = append(queue.Items, item)
	}

	if err := saveJSON(ctx, s.store, syncQueueKey, queue); err != nil {
		return 0, err
	}
	if err := removeKey(ctx, s.store, syncDeadLetterKey); err != nil {
		// Items are now in both lists; a later requeue would duplicate them.
		s.logger.Warn("failed to clear dead letters after requeue", "error", err)
	}
	s.writePendingLocked(ctx, queue.Len())

	s.logger.Info("requeued dead letters", "count", len(dead))
	return len(dead), nil
}

// Process drains the queue through fn.
//
// The queue is read once at the start; items enqueued during the drain wait
// for the next one. Items are handled sequentially in queue order:
//   - fn returns true: the item is removed.
//   - fn returns false, errors or panics: RetryCount is incremented and
//     persisted. Once it reaches MaxRetries the item moves to the dead letters.
//
// Cancelling ctx stops the drain between items and returns the partial result
// with ctx.Err(). SyncInProgress is set for the duration and LastSyncAt is
// stamped at the end.
func (s *SyncService) Process(ctx context.Context, fn driving.SyncFunc) (*domain.DrainResult, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: sync func is required", domain.ErrInvalidInput)
	}
	if !s.draining.CompareAndSwap(false, true) {
		return nil, domain.ErrSyncInProgress
	}
	defer s.draining.Store(false)

	start := s.now()
	result := &domain.DrainResult{}

	inProgress := true
	if _, err := s.UpdateStatus(ctx, domain.SyncStatusPatch{SyncInProgress: &inProgress}); err != nil {
		s.logger.Warn("failed to mark sync in progress", "error", err)
	}
	defer s.finishDrain(ctx, start, result)

	snapshot, err := s.Queue(ctx)
	if err != nil {
		return result, fmt.Errorf("read sync queue: %w", err)
	}

	s.logger.Info("starting sync drain", "items", snapshot.Len())

	for _, item := range snapshot.Items {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ok, callErr := s.invoke(ctx, fn, item.Clone())
		if ok {
			if err := s.Remove(ctx, item.ID); err != nil {
				// Pushed but still queued; it will be sent again next drain.
				s.logger.Warn("failed to remove synced item", "item_id", item.ID, "error", err)
			}
			result.Success++
			continue
		}

		if callErr == nil {
			callErr = errRejected
		}
		result.Failed++
		s.logger.Warn("sync item failed", "item_id", item.ID, "type", item.Type, "error", callErr)

		abandoned, err := s.recordFailure(ctx, item.ID, callErr)
		if err != nil {
			s.logger.Warn("failed to record sync failure", "item_id", item.ID, "error", err)
			continue
		}
		if abandoned {
			result.Abandoned++
		}
	}

	return result, nil
}

// invoke calls fn with the per-item timeout and turns a panic into an error
func (s *SyncService) invoke(ctx context.Context, fn driving.SyncFunc, item *domain.SyncQueueItem) (ok bool, err error) {
	if s.itemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.itemTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("sync func panicked: %v", r)
		}
	}()

	return fn(ctx, item)
}

// recordFailure persists the incremented retry count for itemID and moves the
// item to the dead letters once it has used up its retries.
func (s *SyncService) recordFailure(ctx context.Context, itemID string, cause error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	queue, err := s.loadQueue(ctx)
	if err != nil {
		return false, err
	}
	item := queue.Find(itemID)
	if item == nil {
		// Removed or cleared while fn was running
		return false, nil
	}

	now := s.now()
	item.RetryCount++
	item.LastError = cause.Error()
	item.LastAttemptAt = &now

	abandon := s.maxRetries > 0 && item.RetryCount >= s.maxRetries
	if abandon {
		dead, err := s.loadDeadLetters(ctx)
		if err != nil {
			return false, err
		}
		dead = append(dead, item)
		// Dead letter first: a crash in between duplicates the item rather than losing it.
		if err := saveJSON(ctx, s.store, syncDeadLetterKey, dead); err != nil {
			return false, err
		}
		queue.Items = queue.Without(itemID)
	}

	if err := saveJSON(ctx, s.store, syncQueueKey, queue); err != nil {
		return false, err
	}

	if abandon {
		s.writePendingLocked(ctx, queue.Len())
		s.logger.Warn("sync item abandoned",
			"item_id", itemID,
			"retry_count", item.RetryCount,
			"last_error", item.LastError,
		)
	}
	return abandon, nil
}

// finishDrain clears SyncInProgress and stamps LastSyncAt
func (s *SyncService) finishDrain(ctx context.Context, start time.Time, result *domain.DrainResult) {
	end := s.now()
	result.Duration = end.Sub(start)

	// The drain's own ctx may already be cancelled; the status must still be reset.
	writeCtx := context.WithoutCancel(ctx)
	done := false
	if _, err := s.UpdateStatus(writeCtx, domain.SyncStatusPatch{SyncInProgress: &done, LastSyncAt: &end}); err != nil {
		s.logger.Warn("failed to finish sync status", "error", err)
	}

	s.logger.Info("sync drain completed",
		"success", result.Success,
		"failed", result.Failed,
		"abandoned", result.Abandoned,
		"duration", result.Duration,
	)
}

// writePendingLocked sets PendingChanges to n. Callers hold s.mu and the guard.
// A failure is logged, not returned: the count is derived and the next
// queue mutation rewrites it.
func (s *SyncService) writePendingLocked(ctx context.Context, n int) {
	status, err := s.loadStatus(ctx)
	if err != nil {
		s.logger.Warn("failed to read sync status", "error", err)
		return
	}
	status.PendingChanges = n
	if err := saveJSON(ctx, s.store, syncStatusKey, status); err != nil {
		s.logger.Warn("failed to update pending changes", "pending", n, "error", err)
	}
}

func (s *SyncService) loadStatus(ctx context.Context) (*domain.SyncStatus, error) {
	status := domain.DefaultSyncStatus()
	if _, err := loadJSON(ctx, s.store, syncStatusKey, status); err != nil {
		s.logger.Warn("failed to load sync status, using default", "error", err)
		return domain.DefaultSyncStatus(), err
	}
	return status, nil
}

func (s *SyncService) loadQueue(ctx context.Context) (*domain.SyncQueue, error) {
	queue := domain.NewSyncQueue()
	if _, err := loadJSON(ctx, s.store, syncQueueKey, queue); err != nil {
		s.logger.Warn("failed to load sync queue, using empty queue", "error", err)
		return domain.NewSyncQueue(), err
	}
	if queue.Items == nil {
		queue.Items = []*domain.SyncQueueItem{}
	}
	return queue, nil
}

func (s *SyncService) loadDeadLetters(ctx context.Context) ([]*domain.SyncQueueItem, error) {
	dead := []*domain.SyncQueueItem{}
	if _, err := loadJSON(ctx, s.store, syncDeadLetterKey, &dead); err != nil {
		return []*domain.SyncQueueItem{}, err
	}
	return dead, nil
}
