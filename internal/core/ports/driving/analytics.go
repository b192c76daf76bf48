package driving

import (
	"context"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
)

// AnalyticsService records application events grouped into sessions
type AnalyticsService interface {
	// Init restores a persisted active session, if any
	Init(ctx context.Context) error

	// Teardown ends the active session
	Teardown(ctx context.Context) error

	// TrackEvent appends an event to the log and to the active session
	TrackEvent(ctx context.Context, eventType domain.EventType, data map[string]any, screen string) (*domain.AnalyticsEvent, error)

	// TrackScreen records a screen_view event
	TrackScreen(ctx context.Context, screen string, data map[string]any) (*domain.AnalyticsEvent, error)

	// StartSession ends any active session and starts a new one
	StartSession(ctx context.Context, userID string) (*domain.AnalyticsSession, error)

	// EndSession ends the active session. Returns nil, nil when none is active.
	EndSession(ctx context.Context) (*domain.AnalyticsSession, error)

	// CurrentSession returns a copy of the active session, or nil
	CurrentSession() *domain.AnalyticsSession

	// Events returns the whole event log, oldest first
	Events(ctx context.Context) ([]*domain.AnalyticsEvent, error)

	// EventsByType filters the log by event type
	EventsByType(ctx context.Context, eventType domain.EventType) ([]*domain.AnalyticsEvent, error)

	// EventsByScreen filters the log by originating screen
	EventsByScreen(ctx context.Context, screen string) ([]*domain.AnalyticsEvent, error)

	// EventsCount returns the log length
	EventsCount(ctx context.Context) (int, error)

	// RecentEvents returns the trailing n events
	RecentEvents(ctx context.Context, n int) ([]*domain.AnalyticsEvent, error)

	// Sessions returns the archived (ended) sessions, oldest first
	Sessions(ctx context.Context) ([]*domain.AnalyticsSession, error)

	// Summary aggregates the event log
	Summary(ctx context.Context) (*domain.AnalyticsSummary, error)

	// Clear drops the event log and session history
	Clear(ctx context.Context) error
}
