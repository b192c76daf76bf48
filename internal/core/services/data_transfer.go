package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.DataService = (*DataService)(nil)

//go:embed schema/data_export.schema.json
var dataExportSchemaJSON string

var dataExportSchema = jsonschema.MustCompileString("data_export.schema.json", dataExportSchemaJSON)

// DataService dumps and restores the local entity collections.
type DataService struct {
	entities *EntityService
	logger   *slog.Logger
	now      func() time.Time
}

// DataServiceConfig holds dependencies for DataService.
type DataServiceConfig struct {
	Entities *EntityService
	Logger   *slog.Logger
	Now      func() time.Time
}

// NewDataService creates a new DataService.
func NewDataService(cfg DataServiceConfig) *DataService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &DataService{
		entities: cfg.Entities,
		logger:   logger,
		now:      now,
	}
}

// Export returns every registered collection, empty ones included.
func (s *DataService) Export(ctx context.Context) (*domain.DataExport, error) {
	export := &domain.DataExport{
		Version:     domain.DataExportVersion,
		ExportedAt:  s.now(),
		Collections: make(map[domain.EntityType][]*domain.Record),
	}
	for _, t := range domain.EntityTypes() {
		records, err := s.entities.List(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", t, err)
		}
		export.Collections[t] = records
	}

	s.logger.Info("exported data", "counts", export.Counts())
	return export, nil
}

// Import validates payload and replaces each collection it contains.
// Collections absent from the payload are left untouched. Nothing is
// written unless the whole payload is valid. Imports are not queued for sync.
func (s *DataService) Import(ctx context.Context, payload []byte) (*domain.ImportResult, error) {
	var instance any
	if err := json.Unmarshal(payload, &instance); err != nil {
		return nil, fmt.Errorf("%w: malformed export: %v", domain.ErrInvalidInput, err)
	}
	if err := dataExportSchema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	var export domain.DataExport
	if err := json.Unmarshal(payload, &export); err != nil {
		return nil, fmt.Errorf("%w: malformed export: %v", domain.ErrInvalidInput, err)
	}
	if export.Version > domain.DataExportVersion {
		return nil, fmt.Errorf("%w: export version %d is newer than supported version %d",
			domain.ErrInvalidInput, export.Version, domain.DataExportVersion)
	}

	for t, records := range export.Collections {
		if err := validateCollection(t, records); err != nil {
			return nil, err
		}
	}

	result := &domain.ImportResult{
		Counts:     make(map[domain.EntityType]int, len(export.Collections)),
		ImportedAt: s.now(),
	}
	for _, t := range domain.EntityTypes() {
		records, ok := export.Collections[t]
		if !ok {
			continue
		}
		if err := s.entities.replaceCollection(ctx, t, records); err != nil {
			return nil, fmt.Errorf("import %s: %w", t, err)
		}
		result.Counts[t] = len(records)
	}

	s.logger.Info("imported data", "counts", result.Counts)
	return result, nil
}

func validateCollection(t domain.EntityType, records []*domain.Record) error {
	if !t.IsValid() {
		return fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, t)
	}
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Type == "" {
			r.Type = t
		}
		if r.Type != t {
			return fmt.Errorf("%w: record %s has type %q in %q collection", domain.ErrInvalidInput, r.ID, r.Type, t)
		}
		if seen[r.ID] {
			return fmt.Errorf("%w: duplicate %s id %s", domain.ErrInvalidInput, t, r.ID)
		}
		seen[r.ID] = true
	}
	return nil
}
