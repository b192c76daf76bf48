package services

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.AnalyticsService = (*AnalyticsService)(nil)

const (
	// DefaultMaxEvents caps the persisted event log
	DefaultMaxEvents = 1000

	// DefaultMaxSessions caps the archived session history
	DefaultMaxSessions = 50

	topScreensLimit = 10
)

// AnalyticsService records events and groups them into sessions.
// It owns the single active session; at most one is active at a time.
type AnalyticsService struct {
	store       driven.KeyValueStore
	logger      *slog.Logger
	maxEvents   int
	maxSessions int
	device      domain.DeviceInfo
	now         func() time.Time
	guard       storeGuard

	mu      sync.Mutex
	current *domain.AnalyticsSession
}

// AnalyticsServiceConfig holds dependencies for AnalyticsService.
type AnalyticsServiceConfig struct {
	Store       driven.KeyValueStore
	Logger      *slog.Logger
	MaxEvents   int               // Event log cap (default: 1000)
	MaxSessions int               // Archived session cap (default: 50)
	Device      domain.DeviceInfo // Stamped on every event; Platform defaults to runtime.GOOS
	Now         func() time.Time

	// Lock guards the event log and sessions across processes sharing the
	// store. With a lock the active session is re-read before each mutation.
	Lock     driven.DistributedLock
	LockTTL  time.Duration
	LockWait time.Duration
}

// NewAnalyticsService creates a new AnalyticsService.
// Call Init to pick up a session left active by a previous process.
func NewAnalyticsService(cfg AnalyticsServiceConfig) *AnalyticsService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	maxSessions := cfg.MaxSessions
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	device := cfg.Device
	if device.Platform == "" {
		device.Platform = runtime.GOOS
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &AnalyticsService{
		store:       cfg.Store,
		logger:      logger,
		maxEvents:   maxEvents,
		maxSessions: maxSessions,
		device:      device,
		now:         now,
		guard:       newStoreGuard(cfg.Lock, analyticsLockName, cfg.LockTTL, cfg.LockWait, logger),
	}
}

// Init restores the persisted session if it was never ended.
func (s *AnalyticsService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var session domain.AnalyticsSession
	found, err := loadJSON(ctx, s.store, analyticsCurrent, &session)
	if err != nil {
		return err
	}
	if found && session.IsActive() {
		s.current = &session
		s.logger.Info("resumed analytics session", "session_id", session.ID, "events", len(session.Events))
	}
	return nil
}

// Teardown ends the active session, if any.
func (s *AnalyticsService) Teardown(ctx context.Context) error {
	_, err := s.EndSession(ctx)
	return err
}

// TrackEvent appends an event to the capped log and, when a session is active,
// to that session. Once the log exceeds MaxEvents the oldest entries are dropped.
func (s *AnalyticsService) TrackEvent(ctx context.Context, eventType domain.EventType, data map[string]any, screen string) (*domain.AnalyticsEvent, error) {
	if eventType == "" {
		return nil, fmt.Errorf("%w: event type is required", domain.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	s.refreshCurrentLocked(ctx)
	return s.trackLocked(ctx, eventType, data, screen)
}

// TrackScreen records a screen_view event for screen.
func (s *AnalyticsService) TrackScreen(ctx context.Context, screen string, data map[string]any) (*domain.AnalyticsEvent, error) {
	if screen == "" {
		return nil, fmt.Errorf("%w: screen is required", domain.ErrInvalidInput)
	}
	return s.TrackEvent(ctx, domain.EventScreenView, data, screen)
}

// StartSession ends any active session, then starts and persists a new one
// and records app_open into it.
func (s *AnalyticsService) StartSession(ctx context.Context, userID string) (*domain.AnalyticsSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	s.refreshCurrentLocked(ctx)

	if s.current != nil {
		if _, err := s.endLocked(ctx); err != nil {
			return nil, fmt.Errorf("end previous session: %w", err)
		}
	}

	session := &domain.AnalyticsSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartedAt: s.now(),
		Events:    []*domain.AnalyticsEvent{},
		Screens:   []string{},
	}
	if err := saveJSON(ctx, s.store, analyticsCurrent, session); err != nil {
		return nil, err
	}
	s.current = session

	if _, err := s.trackLocked(ctx, domain.EventAppOpen, nil, ""); err != nil {
		s.logger.Warn("failed to record app_open", "session_id", session.ID, "error", err)
	}

	s.logger.Info("analytics session started", "session_id", session.ID, "user_id", userID)
	return session.Clone(), nil
}

// EndSession stamps EndedAt on the active session, persists and archives it,
// and returns a copy. Returns nil, nil when no session is active.
func (s *AnalyticsService) EndSession(ctx context.Context) (*domain.AnalyticsSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	s.refreshCurrentLocked(ctx)
	return s.endLocked(ctx)
}

// CurrentSession returns a copy of the active session, or nil.
func (s *AnalyticsService) CurrentSession() *domain.AnalyticsSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.Clone()
}

func (s *AnalyticsService) Events(ctx context.Context) ([]*domain.AnalyticsEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadEvents(ctx)
}

func (s *AnalyticsService) EventsByType(ctx context.Context, eventType domain.EventType) ([]*domain.AnalyticsEvent, error) {
	return s.filter(ctx, func(e *domain.AnalyticsEvent) bool { return e.Type == eventType })
}

func (s *AnalyticsService) EventsByScreen(ctx context.Context, screen string) ([]*domain.AnalyticsEvent, error) {
	return s.filter(ctx, func(e *domain.AnalyticsEvent) bool { return e.Screen == screen })
}

func (s *AnalyticsService) EventsCount(ctx context.Context) (int, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// RecentEvents returns the last n events, oldest first.
func (s *AnalyticsService) RecentEvents(ctx context.Context, n int) ([]*domain.AnalyticsEvent, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []*domain.AnalyticsEvent{}, nil
	}
	if len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

// Sessions returns the archived sessions, oldest first.
func (s *AnalyticsService) Sessions(ctx context.Context) ([]*domain.AnalyticsSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadSessions(ctx)
}

// Summary aggregates the event log.
func (s *AnalyticsService) Summary(ctx context.Context) (*domain.AnalyticsSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.loadEvents(ctx)
	if err != nil {
		return nil, err
	}
	sessions, err := s.loadSessions(ctx)
	if err != nil {
		return nil, err
	}

	summary := &domain.AnalyticsSummary{
		TotalEvents:   len(events),
		TotalSessions: len(sessions),
		EventsByType:  make(map[domain.EventType]int),
		TopScreens:    []domain.ScreenCount{},
	}
	if s.current != nil {
		summary.TotalSessions++
		summary.CurrentSession = s.current.ID
	}

	views := make(map[string]int)
	for _, e := range events {
		summary.EventsByType[e.Type]++
		if e.Type == domain.EventScreenView && e.Screen != "" {
			views[e.Screen]++
		}
	}
	for screen, n := range views {
		summary.TopScreens = append(summary.TopScreens, domain.ScreenCount{Screen: screen, Views: n})
	}
	sort.Slice(summary.TopScreens, func(i, j int) bool {
		a, b := summary.TopScreens[i], summary.TopScreens[j]
		if a.Views != b.Views {
			return a.Views > b.Views
		}
		return a.Screen < b.Screen
	})
	if len(summary.TopScreens) > topScreensLimit {
		summary.TopScreens = summary.TopScreens[:topScreensLimit]
	}

	if len(events) > 0 {
		first, last := events[0].Timestamp, events[len(events)-1].Timestamp
		summary.FirstEventAt = &first
		summary.LastEventAt = &last
	}

	return summary, nil
}

// Clear drops the event log and the session history.
// The active session is kept.
func (s *AnalyticsService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := s.guard.acquire(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := removeKey(ctx, s.store, analyticsEventsKey); err != nil {
		return err
	}
	if err := removeKey(ctx, s.store, analyticsHistory); err != nil {
		return err
	}
	s.logger.Info("analytics cleared")
	return nil
}

func (s *AnalyticsService) trackLocked(ctx context.Context, eventType domain.EventType, data map[string]any, screen string) (*domain.AnalyticsEvent, error) {
	event := &domain.AnalyticsEvent{
		ID:        domain.GenerateID(),
		Type:      eventType,
		Data:      maps.Clone(data),
		Screen:    screen,
		Timestamp: s.now(),
		Device:    s.device,
	}
	if s.current != nil {
		event.SessionID = s.current.ID
	}

	events, err := s.loadEvents(ctx)
	if err != nil {
		return nil, err
	}
	events = append(events, event)
	if len(events) > s.maxEvents {
		events = events[len(events)-s.maxEvents:]
	}
	if err := saveJSON(ctx, s.store, analyticsEventsKey, events); err != nil {
		s.logger.Warn("failed to save analytics event", "type", eventType, "error", err)
		return nil, err
	}

	// The event is committed once the log is written. A failed session write
	// only drops it from the session, so callers do not record it twice.
	if s.current != nil {
		prevEvents, prevScreens := s.current.Events, s.current.Screens
		s.current.AddEvent(event)
		if len(s.current.Events) > s.maxEvents {
			s.current.Events = s.current.Events[len(s.current.Events)-s.maxEvents:]
		}
		if err := saveJSON(ctx, s.store, analyticsCurrent, s.current); err != nil {
			s.current.Events, s.current.Screens = prevEvents, prevScreens
			s.logger.Warn("failed to add event to analytics session",
				"session_id", s.current.ID,
				"event_id", event.ID,
				"error", err,
			)
		}
	}

	copied := *event
	copied.Data = maps.Clone(event.Data)
	return &copied, nil
}

// refreshCurrentLocked adopts the session persisted by whichever process
// last changed it. Only used with a lock; a failed read keeps the
// in-memory session.
func (s *AnalyticsService) refreshCurrentLocked(ctx context.Context) {
	if !s.guard.enabled() {
		return
	}
	var session domain.AnalyticsSession
	found, err := loadJSON(ctx, s.store, analyticsCurrent, &session)
	if err != nil {
		s.logger.Warn("failed to reload analytics session", "error", err)
		return
	}
	if found && session.IsActive() {
		s.current = &session
		return
	}
	s.current = nil
}

func (s *AnalyticsService) endLocked(ctx context.Context) (*domain.AnalyticsSession, error) {
	if s.current == nil {
		return nil, nil
	}

	ended := s.now()
	s.current.EndedAt = &ended
	if err := saveJSON(ctx, s.store, analyticsCurrent, s.current); err != nil {
		s.current.EndedAt = nil
		return nil, err
	}

	finished := s.current.Clone()
	s.current = nil

	sessions, err := s.loadSessions(ctx)
	if err == nil {
		sessions = append(sessions, finished)
		if len(sessions) > s.maxSessions {
			sessions = sessions[len(sessions)-s.maxSessions:]
		}
		err = saveJSON(ctx, s.store, analyticsHistory, sessions)
	}
	if err != nil {
		s.logger.Warn("failed to archive analytics session", "session_id", finished.ID, "error", err)
	}

	s.logger.Info("analytics session ended",
		"session_id", finished.ID,
		"events", len(finished.Events),
		"duration", finished.Duration(ended),
	)
	return finished, nil
}

func (s *AnalyticsService) filter(ctx context.Context, keep func(*domain.AnalyticsEvent) bool) ([]*domain.AnalyticsEvent, error) {
	events, err := s.Events(ctx)
	if err != nil {
		return nil, err
	}
	out := []*domain.AnalyticsEvent{}
	for _, e := range events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *AnalyticsService) loadEvents(ctx context.Context) ([]*domain.AnalyticsEvent, error) {
	events := []*domain.AnalyticsEvent{}
	if _, err := loadJSON(ctx, s.store, analyticsEventsKey, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *AnalyticsService) loadSessions(ctx context.Context) ([]*domain.AnalyticsSession, error) {
	sessions := []*domain.AnalyticsSession{}
	if _, err := loadJSON(ctx, s.store, analyticsHistory, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
