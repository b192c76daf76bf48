package domain

import "time"

// SyncItemStatus is the sync state of a locally stored entity
type SyncItemStatus string

const (
	SyncItemSynced   SyncItemStatus = "synced"
	SyncItemPending  SyncItemStatus = "pending"
	SyncItemConflict SyncItemStatus = "conflict"
)

// SyncMetadata tags an entity with local versioning information.
// No conflict resolution is performed on it.
type SyncMetadata struct {
	LocalVersion  int            `json:"localVersion"`
	ServerVersion *int           `json:"serverVersion,omitempty"`
	LastModified  time.Time      `json:"lastModified"`
	Status        SyncItemStatus `json:"syncStatus"`
}

// MarkPending records a local modification
func (m *SyncMetadata) MarkPending(now time.Time) {
	m.LocalVersion++
	m.LastModified = now
	m.Status = SyncItemPending
}
