package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.CloudConfigService = (*CloudConfigService)(nil)

// sealedPrefix marks a config value encrypted by a SecretSealer
const sealedPrefix = "enc:v1:"

// errSealedWithoutKey is returned when a sealed config is read without a sealer
var errSealedWithoutKey = errors.New("cloud config is encrypted but no encryption key is configured")

// CloudConfigService stores the remote endpoint configuration.
// When a sealer is configured the value is encrypted at rest.
type CloudConfigService struct {
	store  driven.KeyValueStore
	sealer driven.SecretSealer
	logger *slog.Logger

	mu sync.Mutex
}

// CloudConfigServiceConfig holds dependencies for CloudConfigService.
type CloudConfigServiceConfig struct {
	Store  driven.KeyValueStore
	Sealer driven.SecretSealer // Optional
	Logger *slog.Logger
}

// NewCloudConfigService creates a new CloudConfigService.
func NewCloudConfigService(cfg CloudConfigServiceConfig) *CloudConfigService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudConfigService{
		store:  cfg.Store,
		sealer: cfg.Sealer,
		logger: logger,
	}
}

func (s *CloudConfigService) Get(ctx context.Context) (*domain.CloudSyncConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.store.Get(ctx, cloudConfigKey)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotConfigured
	}
	if err != nil {
		return nil, domain.NewStorageError("get", cloudConfigKey, err)
	}

	plain := []byte(raw)
	if sealed, ok := strings.CutPrefix(raw, sealedPrefix); ok {
		if s.sealer == nil {
			return nil, errSealedWithoutKey
		}
		ciphertext, err := base64.StdEncoding.DecodeString(sealed)
		if err != nil {
			return nil, domain.NewStorageError("decode", cloudConfigKey, err)
		}
		plain, err = s.sealer.Open(ciphertext)
		if err != nil {
			return nil, fmt.Errorf("open cloud config: %w", err)
		}
	} else if s.sealer != nil {
		s.logger.Warn("cloud config is stored unencrypted; save it again to encrypt it")
	}

	var cfg domain.CloudSyncConfig
	if err := json.Unmarshal(plain, &cfg); err != nil {
		return nil, domain.NewStorageError("decode", cloudConfigKey, err)
	}
	return &cfg, nil
}

// Save validates cfg and stores it, sealed when a sealer is configured.
func (s *CloudConfigService) Save(ctx context.Context, cfg *domain.CloudSyncConfig) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is required", domain.ErrInvalidInput)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return domain.NewStorageError("encode", cloudConfigKey, err)
	}

	value := string(data)
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(data)
		if err != nil {
			return fmt.Errorf("seal cloud config: %w", err)
		}
		value = sealedPrefix + base64.StdEncoding.EncodeToString(sealed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(ctx, cloudConfigKey, value); err != nil {
		return domain.NewStorageError("set", cloudConfigKey, err)
	}

	s.logger.Info("cloud sync configured", "api_url", cfg.APIURL, "user_id", cfg.UserID, "encrypted", s.sealer != nil)
	return nil
}

func (s *CloudConfigService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeKey(ctx, s.store, cloudConfigKey)
}
