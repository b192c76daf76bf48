package main

// @title           AgroLink Core API
// @version         1.0
// @description     Local API over the AgroLink offline sync queue, entity store and analytics log.

// @host      localhost:8787
// @BasePath  /api/v1
// @schemes   http

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT Bearer token issued by `agrolink-core token`. Format: "Bearer {token}"

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/custodia-labs/agrolink-core/internal/adapters/driven/cloud"
	"github.com/custodia-labs/agrolink-core/internal/adapters/driven/postgres"
	redisadapter "github.com/custodia-labs/agrolink-core/internal/adapters/driven/redis"
	"github.com/custodia-labs/agrolink-core/internal/adapters/driven/secrets"
	"github.com/custodia-labs/agrolink-core/internal/adapters/driven/sqlite"
	"github.com/custodia-labs/agrolink-core/internal/config"
	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
	"github.com/custodia-labs/agrolink-core/internal/core/services"
	"github.com/custodia-labs/agrolink-core/internal/worker"
)

var version = "dev"

func main() {
	// Cancel in-flight work on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// app holds the wired services for one command invocation
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store driven.KeyValueStore
	lock  driven.DistributedLock

	sync      *services.SyncService
	analytics *services.AnalyticsService
	entities  *services.EntityService
	data      *services.DataService
	cloud     *services.CloudConfigService

	closers []func() error
}

// newApp loads configuration, opens the storage backend and builds the
// services on top of it.
func newApp(ctx context.Context, opts config.Options, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}
	if err := a.openStorage(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var sealer driven.SecretSealer
	if cfg.Security.EncryptionKey != "" {
		s, err := secrets.NewSealerFromPassphrase(cfg.Security.EncryptionKey)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("create sealer: %w", err)
		}
		sealer = s
	}

	a.sync = services.NewSyncService(services.SyncServiceConfig{
		Store:       a.store,
		Logger:      logger.With("service", "sync"),
		MaxRetries:  cfg.Sync.MaxRetries,
		ItemTimeout: cfg.Sync.ItemTimeout,
		Lock:        a.lock,
	})
	a.analytics = services.NewAnalyticsService(services.AnalyticsServiceConfig{
		Store:       a.store,
		Logger:      logger.With("service", "analytics"),
		MaxEvents:   cfg.Analytics.MaxEvents,
		MaxSessions: cfg.Analytics.MaxSessions,
		Device: domain.DeviceInfo{
			Platform:   cfg.Analytics.Platform,
			AppVersion: cfg.Analytics.AppVersion,
		},
		Lock: a.lock,
	})
	a.entities = services.NewEntityService(services.EntityServiceConfig{
		Store:  a.store,
		Sync:   a.sync,
		Logger: logger.With("service", "entities"),
		Lock:   a.lock,
	})
	a.data = services.NewDataService(services.DataServiceConfig{
		Entities: a.entities,
		Logger:   logger.With("service", "data"),
	})
	a.cloud = services.NewCloudConfigService(services.CloudConfigServiceConfig{
		Store:  a.store,
		Sealer: sealer,
		Logger: logger.With("service", "cloud_config"),
	})

	if err := a.analytics.Init(ctx); err != nil {
		logger.Warn("failed to restore analytics session", "error", err)
	}

	return a, nil
}

// openStorage selects the key-value backend and, for backends other
// processes can open too, the distributed lock that guards drains and every
// container mutation.
func (a *app) openStorage(ctx context.Context) error {
	sc := a.cfg.Storage

	switch sc.Backend {
	case config.BackendRedis:
		client, err := redisadapter.Connect(ctx, sc.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client.Close)
		a.store = redisadapter.NewKVStore(client, sc.Namespace)
		a.lock = redisadapter.NewLock(client, sc.Namespace)
		a.logger.Debug("using redis storage")

	case config.BackendPostgres:
		db, err := postgres.Connect(ctx, postgres.DefaultConfig(sc.DatabaseURL))
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		if err := db.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		a.store = postgres.NewKVStore(db, sc.Namespace)
		a.lock = postgres.NewAdvisoryLock(db)
		a.logger.Debug("using postgres storage")

	case config.BackendSQLite, config.BackendMemory:
		path := sc.SQLitePath
		if sc.Backend == config.BackendMemory {
			path = ":memory:"
		}
		store, err := sqlite.Open(ctx, path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, store.Close)
		a.store = store
		if sc.Backend == config.BackendSQLite {
			a.lock = sqlite.NewLock(store)
		}
		a.logger.Debug("using sqlite storage", "path", path)

	default:
		return fmt.Errorf("unsupported storage backend %q", sc.Backend)
	}
	return nil
}

// shutdown ends the analytics session so the next process starts a fresh one
func (a *app) shutdown(ctx context.Context) {
	if err := a.analytics.Teardown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("failed to end analytics session", "error", err)
	}
}

// Close releases storage connections in reverse order of opening
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

// newWorker builds the drain worker against the cloud push client
func (a *app) newWorker() *worker.Worker {
	return worker.NewWorker(worker.WorkerConfig{
		Sync:         a.sync,
		CloudConfig:  a.cloud,
		NewPusher:    newCloudPusher,
		Logger:       a.logger.With("component", "worker"),
		Lock:         a.lock,
		LockTTL:      a.cfg.Sync.LockTTL,
		LockRequired: a.cfg.Sync.LockRequired,
		Schedule:     a.cfg.Sync.Schedule,
		RunOnStart:   true,
	})
}

func newCloudPusher(cfg *domain.CloudSyncConfig) (worker.Pusher, error) {
	client, err := cloud.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler).With("version", version), nil
}
