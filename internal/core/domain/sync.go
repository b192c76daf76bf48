package domain

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// EntityType tags which kind of domain object a queued mutation refers to
type EntityType string

const (
	EntityTypeUser      EntityType = "user"
	EntityTypeJob       EntityType = "job"
	EntityTypeWorkOrder EntityType = "work_order"
	EntityTypeReview    EntityType = "review"
)

var (
	entityTypesMu sync.RWMutex
	entityTypes   = []EntityType{
		EntityTypeUser,
		EntityTypeJob,
		EntityTypeWorkOrder,
		EntityTypeReview,
	}
)

// RegisterEntityType adds a new entity type to the known set.
// Registering an existing type is a no-op.
func RegisterEntityType(t EntityType) error {
	if t == "" {
		return fmt.Errorf("%w: empty entity type", ErrInvalidInput)
	}
	entityTypesMu.Lock()
	defer entityTypesMu.Unlock()
	for _, existing := range entityTypes {
		if existing == t {
			return nil
		}
	}
	entityTypes = append(entityTypes, t)
	return nil
}

// EntityTypes returns the registered entity types in registration order
func EntityTypes() []EntityType {
	entityTypesMu.RLock()
	defer entityTypesMu.RUnlock()
	out := make([]EntityType, len(entityTypes))
	copy(out, entityTypes)
	return out
}

// IsValid reports whether the entity type is registered
func (t EntityType) IsValid() bool {
	entityTypesMu.RLock()
	defer entityTypesMu.RUnlock()
	for _, existing := range entityTypes {
		if existing == t {
			return true
		}
	}
	return false
}

// SyncAction is the kind of mutation a queue item carries
type SyncAction string

const (
	SyncActionCreate SyncAction = "create"
	SyncActionUpdate SyncAction = "update"
	SyncActionDelete SyncAction = "delete"
)

// IsValid reports whether the action is one of create, update or delete
func (a SyncAction) IsValid() bool {
	switch a {
	case SyncActionCreate, SyncActionUpdate, SyncActionDelete:
		return true
	}
	return false
}

// SyncStatus is the singleton record describing the sync subsystem.
// PendingChanges mirrors the queue length after every queue mutation.
type SyncStatus struct {
	LastSyncAt     *time.Time `json:"lastSyncAt"`
	PendingChanges int        `json:"pendingChanges"`
	IsOnline       bool       `json:"isOnline"`
	SyncInProgress bool       `json:"syncInProgress"`
}

// DefaultSyncStatus returns the status used when nothing has been persisted
func DefaultSyncStatus() *SyncStatus {
	return &SyncStatus{
		LastSyncAt:     nil,
		PendingChanges: 0,
		IsOnline:       true,
		SyncInProgress: false,
	}
}

// SyncStatusPatch is a partial status update; nil fields are left unchanged
type SyncStatusPatch struct {
	LastSyncAt     *time.Time
	PendingChanges *int
	IsOnline       *bool
	SyncInProgress *bool
}

// Apply merges the patch into s
func (p SyncStatusPatch) Apply(s *SyncStatus) {
	if p.LastSyncAt != nil {
		t := *p.LastSyncAt
		s.LastSyncAt = &t
	}
	if p.PendingChanges != nil {
		s.PendingChanges = *p.PendingChanges
	}
	if p.IsOnline != nil {
		s.IsOnline = *p.IsOnline
	}
	if p.SyncInProgress != nil {
		s.SyncInProgress = *p.SyncInProgress
	}
}

// SyncQueueItem is one pending local mutation
type SyncQueueItem struct {
	ID            string          `json:"id"`
	Type          EntityType      `json:"type"`
	Action        SyncAction      `json:"action"`
	Data          json.RawMessage `json:"data,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	RetryCount    int             `json:"retryCount"`
	LastError     string          `json:"lastError,omitempty"`
	LastAttemptAt *time.Time      `json:"lastAttemptAt,omitempty"`
}

// Clone returns a deep copy of the item
func (i *SyncQueueItem) Clone() *SyncQueueItem {
	c := *i
	if i.Data != nil {
		c.Data = append(json.RawMessage(nil), i.Data...)
	}
	if i.LastAttemptAt != nil {
		t := *i.LastAttemptAt
		c.LastAttemptAt = &t
	}
	return &c
}

// EnqueueRequest describes a mutation to append to the queue.
// ID, CreatedAt and RetryCount are assigned on enqueue.
type EnqueueRequest struct {
	Type   EntityType
	Action SyncAction
	Data   any
}

// Validate checks type and action
func (r EnqueueRequest) Validate() error {
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrInvalidInput, r.Type)
	}
	if !r.Action.IsValid() {
		return fmt.Errorf("%w: unknown sync action %q", ErrInvalidInput, r.Action)
	}
	return nil
}

// SyncQueue is the ordered list of pending mutations; insertion order is processing order
type SyncQueue struct {
	Items         []*SyncQueueItem `json:"items"`
	LastProcessed *time.Time       `json:"lastProcessed"`
}

// NewSyncQueue returns an empty queue
func NewSyncQueue() *SyncQueue {
	return &SyncQueue{Items: []*SyncQueueItem{}}
}

// Len returns the number of queued items
func (q *SyncQueue) Len() int {
	return len(q.Items)
}

// Find returns the item with the given id, or nil
func (q *SyncQueue) Find(id string) *SyncQueueItem {
	for _, item := range q.Items {
		if item.ID == id {
			return item
		}
	}
	return nil
}

// Without returns the items other than id, preserving order
func (q *SyncQueue) Without(id string) []*SyncQueueItem {
	kept := make([]*SyncQueueItem, 0, len(q.Items))
	for _, item := range q.Items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	return kept
}

// DrainResult is the outcome of one pass over the queue snapshot
type DrainResult struct {
	Success   int           `json:"success"`
	Failed    int           `json:"failed"`
	Abandoned int           `json:"abandoned"`
	Duration  time.Duration `json:"duration" swaggertype:"integer" example:"1500000"`
}

// Total returns the number of items attempted
func (r *DrainResult) Total() int {
	return r.Success + r.Failed
}
