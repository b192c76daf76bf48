package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.EntityService = (*EntityService)(nil)

// EntityService keeps the local entity collections and records every
// mutation on the sync queue. A mutation is queued before the collection is
// written, so a stored pending record always has a queue item.
type EntityService struct {
	store  driven.KeyValueStore
	sync   driving.SyncService
	logger *slog.Logger
	now    func() time.Time
	guard  storeGuard

	mu sync.Mutex
}

// EntityServiceConfig holds dependencies for EntityService.
type EntityServiceConfig struct {
	Store  driven.KeyValueStore
	Sync   driving.SyncService
	Logger *slog.Logger
	Now    func() time.Time

	// Lock guards collection writes across processes sharing the store
	Lock     driven.DistributedLock
	LockTTL  time.Duration
	LockWait time.Duration
}

// NewEntityService creates a new EntityService.
func NewEntityService(cfg EntityServiceConfig) *EntityService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &EntityService{
		store:  cfg.Store,
		sync:   cfg.Sync,
		logger: logger,
		now:    now,
		guard:  newStoreGuard(cfg.Lock, entityLockName, cfg.LockTTL, cfg.LockWait, logger),
	}
}

func (s *EntityService) List(ctx context.Context, entityType domain.EntityType) ([]*domain.Record, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, entityType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCollection(ctx, entityType)
}

func (s *EntityService) Get(ctx context.Context, entityType domain.EntityType, id string) (*domain.Record, error) {
	records, err := s.List(ctx, entityType)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Save creates the record when id is empty or unknown and updates it
// otherwise. The record is marked pending and the mutation is queued.
func (s *EntityService) Save(ctx context.Context, entityType domain.EntityType, id string, data any) (*domain.Record, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, entityType)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: encode record: %v", domain.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	records, err := s.loadCollection(ctx, entityType)
	if err != nil {
		return nil, err
	}

	action := domain.SyncActionUpdate
	var record *domain.Record
	if id != "" {
		for _, r := range records {
			if r.ID == id {
				record = r
				break
			}
		}
	}
	if record == nil {
		if id == "" {
			id = domain.GenerateID()
		}
		action = domain.SyncActionCreate
		record = &domain.Record{ID: id, Type: entityType}
		records = append(records, record)
	}
	record.Data = encoded
	record.Sync.MarkPending(s.now())

	item, err := s.sync.Enqueue(ctx, domain.EnqueueRequest{Type: entityType, Action: action, Data: record})
	if err != nil {
		return nil, fmt.Errorf("queue %s %s: %w", action, entityType, err)
	}
	if err := saveJSON(ctx, s.store, dataKey(entityType), records); err != nil {
		s.unqueue(ctx, item)
		return nil, err
	}

	s.logger.Debug("saved record", "type", entityType, "id", id, "action", action)
	return record, nil
}

// Delete removes the record and queues a delete carrying only its id.
func (s *EntityService) Delete(ctx context.Context, entityType domain.EntityType, id string) error {
	if !entityType.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, entityType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	records, err := s.loadCollection(ctx, entityType)
	if err != nil {
		return err
	}

	kept := make([]*domain.Record, 0, len(records))
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return domain.ErrNotFound
	}

	req := domain.EnqueueRequest{Type: entityType, Action: domain.SyncActionDelete, Data: map[string]string{"id": id}}
	item, err := s.sync.Enqueue(ctx, req)
	if err != nil {
		return fmt.Errorf("queue delete %s: %w", entityType, err)
	}
	if err := saveJSON(ctx, s.store, dataKey(entityType), kept); err != nil {
		s.unqueue(ctx, item)
		return err
	}

	s.logger.Debug("deleted record", "type", entityType, "id", id)
	return nil
}

// Counts returns the number of stored records for every registered type.
func (s *EntityService) Counts(ctx context.Context) (map[domain.EntityType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[domain.EntityType]int)
	for _, t := range domain.EntityTypes() {
		records, err := s.loadCollection(ctx, t)
		if err != nil {
			return nil, err
		}
		counts[t] = len(records)
	}
	return counts, nil
}

// replaceCollection overwrites a collection without queueing anything.
// Used by imports.
func (s *EntityService) replaceCollection(ctx context.Context, entityType domain.EntityType, records []*domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if records == nil {
		records = []*domain.Record{}
	}
	return saveJSON(ctx, s.store, dataKey(entityType), records)
}

// unqueue withdraws a mutation whose collection write failed.
// If that fails too the item stays queued and pushes a change the
// collection never kept.
func (s *EntityService) unqueue(ctx context.Context, item *domain.SyncQueueItem) {
	if err := s.sync.Remove(context.WithoutCancel(ctx), item.ID); err != nil {
		s.logger.Warn("failed to withdraw queued mutation", "item_id", item.ID, "type", item.Type, "error", err)
	}
}

func (s *EntityService) loadCollection(ctx context.Context, entityType domain.EntityType) ([]*domain.Record, error) {
	records := []*domain.Record{}
	if _, err := loadJSON(ctx, s.store, dataKey(entityType), &records); err != nil {
		return nil, err
	}
	return records, nil
}
