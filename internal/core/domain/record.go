package domain

import (
	"encoding/json"
	"time"
)

// DataExportVersion is the current export payload format
const DataExportVersion = 1

// Record is a locally stored entity together with its sync metadata
type Record struct {
	ID   string          `json:"id"`
	Type EntityType      `json:"type"`
	Data json.RawMessage `json:"data"`
	Sync SyncMetadata    `json:"sync"`
}

// DataExport is a full dump of the local entity collections
type DataExport struct {
	Version     int                      `json:"version"`
	ExportedAt  time.Time                `json:"exportedAt"`
	Collections map[EntityType][]*Record `json:"collections"`
}

// Counts returns the number of records per entity type
func (e *DataExport) Counts() map[EntityType]int {
	counts := make(map[EntityType]int, len(e.Collections))
	for t, records := range e.Collections {
		counts[t] = len(records)
	}
	return counts
}

// ImportResult reports what an import wrote
type ImportResult struct {
	Counts     map[EntityType]int `json:"counts"`
	ImportedAt time.Time          `json:"importedAt"`
}
