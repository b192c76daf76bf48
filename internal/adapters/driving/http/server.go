package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Drainer runs one sync drain cycle on demand
type Drainer interface {
	RunOnce(ctx context.Context) (*domain.DrainResult, error)
}

// Server exposes the local sync queue, entity store and analytics log over HTTP
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	logger     *slog.Logger

	// Services
	syncService      driving.SyncService
	entityService    driving.EntityService
	dataService      driving.DataService
	analyticsService driving.AnalyticsService
	cloudConfig      driving.CloudConfigService
	drainer          Drainer

	// Infrastructure
	authAdapter driven.AuthAdapter // nil disables authentication
	store       Pinger
}

// Config holds server configuration
type Config struct {
	Host           string
	Port           int
	Version        string
	AllowedOrigins []string
	Logger         *slog.Logger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "127.0.0.1",
		Port:    8787,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	syncService driving.SyncService,
	entityService driving.EntityService,
	dataService driving.DataService,
	analyticsService driving.AnalyticsService,
	cloudConfig driving.CloudConfigService,
	drainer Drainer,
	authAdapter driven.AuthAdapter, // can be nil
	store Pinger,
) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		logger:           logger,
		syncService:      syncService,
		entityService:    entityService,
		dataService:      dataService,
		analyticsService: analyticsService,
		cloudConfig:      cloudConfig,
		drainer:          drainer,
		authAdapter:      authAdapter,
		store:            store,
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute, // drains run inside the request
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authAdapter)
	read := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(h)
	}
	write := func(h http.HandlerFunc) http.Handler {
		return authMiddleware.Authenticate(authMiddleware.RequireWrite(h))
	}

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Sync queue
	s.router.Handle("GET /api/v1/sync/status", read(s.handleGetSyncStatus))
	s.router.Handle("GET /api/v1/sync/queue", read(s.handleGetQueue))
	s.router.Handle("POST /api/v1/sync/queue", write(s.handleEnqueue))
	s.router.Handle("DELETE /api/v1/sync/queue", write(s.handleClearQueue))
	s.router.Handle("DELETE /api/v1/sync/queue/{id}", write(s.handleRemoveQueueItem))
	s.router.Handle("POST /api/v1/sync/drain", write(s.handleDrain))
	s.router.Handle("GET /api/v1/sync/dead-letters", read(s.handleListDeadLetters))
	s.router.Handle("POST /api/v1/sync/dead-letters/requeue", write(s.handleRequeueDeadLetters))

	// Local entity store
	s.router.Handle("GET /api/v1/records", read(s.handleRecordCounts))
	s.router.Handle("GET /api/v1/records/{type}", read(s.handleListRecords))
	s.router.Handle("POST /api/v1/records/{type}", write(s.handleCreateRecord))
	s.router.Handle("GET /api/v1/records/{type}/{id}", read(s.handleGetRecord))
	s.router.Handle("PUT /api/v1/records/{type}/{id}", write(s.handleUpdateRecord))
	s.router.Handle("DELETE /api/v1/records/{type}/{id}", write(s.handleDeleteRecord))

	// Data transfer
	s.router.Handle("GET /api/v1/export", read(s.handleExport))
	s.router.Handle("POST /api/v1/import", write(s.handleImport))

	// Analytics
	s.router.Handle("GET /api/v1/analytics/events", read(s.handleListEvents))
	s.router.Handle("POST /api/v1/analytics/events", write(s.handleTrackEvent))
	s.router.Handle("GET /api/v1/analytics/summary", read(s.handleAnalyticsSummary))
	s.router.Handle("GET /api/v1/analytics/sessions", read(s.handleListSessions))
	s.router.Handle("POST /api/v1/analytics/sessions", write(s.handleStartSession))
	s.router.Handle("GET /api/v1/analytics/sessions/current", read(s.handleCurrentSession))
	s.router.Handle("DELETE /api/v1/analytics/sessions/current", write(s.handleEndSession))
	s.router.Handle("DELETE /api/v1/analytics", write(s.handleClearAnalytics))

	// Cloud sync endpoint
	s.router.Handle("GET /api/v1/cloud", read(s.handleGetCloudConfig))
	s.router.Handle("PUT /api/v1/cloud", write(s.handleSaveCloudConfig))
	s.router.Handle("DELETE /api/v1/cloud", write(s.handleClearCloudConfig))
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.httpServer.Addr, "auth", s.authAdapter != nil)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
