package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/agrolink-core/internal/core/domain"
	"github.com/custodia-labs/agrolink-core/internal/core/ports/driven/mocks"
)

func newTestAnalyticsService(t *testing.T, maxEvents int) (*AnalyticsService, *mocks.MockKeyValueStore, *testClock) {
	t.Helper()
	store := mocks.NewMockKeyValueStore()
	clock := newTestClock()
	svc := NewAnalyticsService(AnalyticsServiceConfig{
		Store:     store,
		MaxEvents: maxEvents,
		Device:    domain.DeviceInfo{Platform: "android", AppVersion: "1.4.0"},
		Now:       clock.Now,
	})
	return svc, store, clock
}

func TestAnalyticsService_TrackEventWithoutSession(t *testing.T) {
	svc, _, clock := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	event, err := svc.TrackEvent(ctx, domain.EventSearch, map[string]any{"query": "maize"}, "market")
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, domain.EventSearch, event.Type)
	assert.Equal(t, "market", event.Screen)
	assert.Empty(t, event.SessionID)
	assert.Equal(t, clock.Now(), event.Timestamp)
	assert.Equal(t, "android", event.Device.Platform)

	events, err := svc.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "maize", events[0].Data["query"])
}

func TestAnalyticsService_TrackEventRequiresType(t *testing.T) {
	svc, _, _ := newTestAnalyticsService(t, 0)

	_, err := svc.TrackEvent(context.Background(), "", nil, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.TrackScreen(context.Background(), "", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAnalyticsService_EventLogIsCapped(t *testing.T) {
	svc, _, _ := newTestAnalyticsService(t, 5)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		_, err := svc.TrackEvent(ctx, domain.EventJobView, map[string]any{"n": i}, "")
		require.NoError(t, err)
	}

	events, err := svc.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 5)
	// Oldest dropped; decoded numbers come back as float64
	assert.Equal(t, float64(3), events[0].Data["n"])
	assert.Equal(t, float64(7), events[4].Data["n"])
}

func TestAnalyticsService_DefaultCap(t *testing.T) {
	svc, _, _ := newTestAnalyticsService(t, 0)
	assert.Equal(t, DefaultMaxEvents, svc.maxEvents)
	assert.Equal(t, DefaultMaxSessions, svc.maxSessions)
}

func TestAnalyticsService_TrackEventStorageFailure(t *testing.T) {
	svc, store, _ := newTestAnalyticsService(t, 0)
	store.FailSet(analyticsEventsKey, errDiskFull)

	event, err := svc.TrackEvent(context.Background(), domain.EventShare, nil, "")
	assert.Nil(t, event)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestAnalyticsService_TrackEventSessionWriteFailure(t *testing.T) {
	svc, store, _ := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "farmer-7")
	require.NoError(t, err)
	store.FailSet(analyticsCurrent, errDiskFull)

	event, err := svc.TrackEvent(ctx, domain.EventJobApply, nil, "job_detail")
	require.NoError(t, err)
	require.NotNil(t, event)

	events, err := svc.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, event.ID, events[1].ID)

	current := svc.CurrentSession()
	require.NotNil(t, current)
	require.Len(t, current.Events, 1)
	assert.Equal(t, domain.EventAppOpen, current.Events[0].Type)
	assert.Empty(t, current.Screens)
}

func TestAnalyticsService_SharedStoreAcrossInstances(t *testing.T) {
	store := mocks.NewMockKeyValueStore()
	lock := mocks.NewMockDistributedLock()
	ctx := context.Background()

	newInstance := func() *AnalyticsService {
		return NewAnalyticsService(AnalyticsServiceConfig{Store: store, Lock: lock})
	}
	a, b := newInstance(), newInstance()

	session, err := a.StartSession(ctx, "farmer-7")
	require.NoError(t, err)

	// b picks up the session a started without an Init
	_, err = b.TrackScreen(ctx, "jobs", nil)
	require.NoError(t, err)
	current := b.CurrentSession()
	require.NotNil(t, current)
	assert.Equal(t, session.ID, current.ID)
	assert.Len(t, current.Events, 2)

	// and a sees the event b added
	_, err = a.TrackEvent(ctx, domain.EventJobApply, nil, "job_detail")
	require.NoError(t, err)
	current = a.CurrentSession()
	require.NotNil(t, current)
	assert.Len(t, current.Events, 3)
	assert.Equal(t, []string{"jobs", "job_detail"}, current.Screens)

	// Ending in b leaves no session for a to extend
	_, err = b.EndSession(ctx)
	require.NoError(t, err)
	event, err := a.TrackEvent(ctx, domain.EventAppClose, nil, "")
	require.NoError(t, err)
	assert.Empty(t, event.SessionID)
	assert.Nil(t, a.CurrentSession())

	sessions, err := a.Sessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.False(t, lock.IsHeld(analyticsLockName))
}

func TestAnalyticsService_SessionLifecycle(t *testing.T) {
	svc, store, clock := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	session, err := svc.StartSession(ctx, "farmer-7")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "farmer-7", session.UserID)
	assert.True(t, session.IsActive())

	current := svc.CurrentSession()
	require.NotNil(t, current)
	require.Len(t, current.Events, 1)
	assert.Equal(t, domain.EventAppOpen, current.Events[0].Type)

	_, err = svc.TrackScreen(ctx, "jobs", nil)
	require.NoError(t, err)
	_, err = svc.TrackScreen(ctx, "jobs", nil)
	require.NoError(t, err)
	_, err = svc.TrackEvent(ctx, domain.EventJobApply, nil, "job_detail")
	require.NoError(t, err)

	current = svc.CurrentSession()
	assert.Len(t, current.Events, 4)
	assert.Equal(t, []string{"jobs", "job_detail"}, current.Screens)
	for _, e := range current.Events {
		assert.Equal(t, session.ID, e.SessionID)
	}

	_, persisted := store.Raw(analyticsCurrent)
	assert.True(t, persisted)

	clock.Advance(10 * time.Minute)
	ended, err := svc.EndSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, ended)
	assert.False(t, ended.IsActive())
	assert.Equal(t, 10*time.Minute, ended.Duration(clock.Now()))
	assert.Nil(t, svc.CurrentSession())

	sessions, err := svc.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, session.ID, sessions[0].ID)

	// Events after the session carry no session id
	event, err := svc.TrackEvent(ctx, domain.EventAppClose, nil, "")
	require.NoError(t, err)
	assert.Empty(t, event.SessionID)
}

func TestAnalyticsService_EndSessionWhenIdle(t *testing.T) {
	svc, _, _ := newTestAnalyticsService(t, 0)

	ended, err := svc.EndSession(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, ended)
}

func TestAnalyticsService_StartSessionEndsPrevious(t *testing.T) {
	svc, _, _ := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	first, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)
	second, err := svc.StartSession(ctx, "u1")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	sessions, err := svc.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.NotNil(t, sessions[0].EndedAt)
	assert.Equal(t, second.ID, svc.CurrentSession().ID)
}

func TestAnalyticsService_SessionHistoryIsCapped(t *testing.T) {
	store := mocks.NewMockKeyValueStore()
	svc := NewAnalyticsService(AnalyticsServiceConfig{Store: store, MaxSessions: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		s, err := svc.StartSession(ctx, "")
		require.NoError(t, err)
		ids = append(ids, s.ID)
		_, err = svc.EndSession(ctx)
		require.NoError(t, err)
	}

	sessions, err := svc.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[4], sessions[2].ID)
}

func TestAnalyticsService_InitRestoresActiveSession(t *testing.T) {
	svc, store, clock := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	session, err := svc.StartSession(ctx, "u9")
	require.NoError(t, err)

	restarted := NewAnalyticsService(AnalyticsServiceConfig{Store: store, Now: clock.Now})
	assert.Nil(t, restarted.CurrentSession())
	require.NoError(t, restarted.Init(ctx))

	current := restarted.CurrentSession()
	require.NotNil(t, current)
	assert.Equal(t, session.ID, current.ID)

	require.NoError(t, restarted.Teardown(ctx))
	assert.Nil(t, restarted.CurrentSession())

	// An ended session is not resumed
	again := NewAnalyticsService(AnalyticsServiceConfig{Store: store, Now: clock.Now})
	require.NoError(t, again.Init(ctx))
	assert.Nil(t, again.CurrentSession())
}

func TestAnalyticsService_CurrentSessionIsACopy(t *testing.T) {
	svc, _, _ := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "")
	require.NoError(t, err)

	copied := svc.CurrentSession()
	copied.Events = nil
	copied.Screens = append(copied.Screens, "tampered")

	current := svc.CurrentSession()
	assert.Len(t, current.Events, 1)
	assert.NotContains(t, current.Screens, "tampered")
}

func TestAnalyticsService_Queries(t *testing.T) {
	svc, _, _ := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	track := func(typ domain.EventType, screen string) {
		_, err := svc.TrackEvent(ctx, typ, nil, screen)
		require.NoError(t, err)
	}
	track(domain.EventScreenView, "home")
	track(domain.EventSearch, "home")
	track(domain.EventScreenView, "jobs")
	track(domain.EventJobView, "jobs")
	track(domain.EventScreenView, "home")

	byType, err := svc.EventsByType(ctx, domain.EventScreenView)
	require.NoError(t, err)
	assert.Len(t, byType, 3)

	byScreen, err := svc.EventsByScreen(ctx, "jobs")
	require.NoError(t, err)
	assert.Len(t, byScreen, 2)

	none, err := svc.EventsByScreen(ctx, "reviews")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	count, err := svc.EventsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	recent, err := svc.RecentEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domain.EventJobView, recent[0].Type)
	assert.Equal(t, domain.EventScreenView, recent[1].Type)

	all, err := svc.RecentEvents(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	empty, err := svc.RecentEvents(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAnalyticsService_Summary(t *testing.T) {
	svc, _, clock := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	first := clock.Now()
	for i := 0; i < 12; i++ {
		screen := fmt.Sprintf("screen-%02d", i)
		for j := 0; j <= i%3; j++ {
			_, err := svc.TrackScreen(ctx, screen, nil)
			require.NoError(t, err)
		}
	}
	clock.Advance(time.Hour)
	session, err := svc.StartSession(ctx, "")
	require.NoError(t, err)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, summary.TotalEvents)
	assert.Equal(t, 1, summary.TotalSessions)
	assert.Equal(t, session.ID, summary.CurrentSession)
	assert.Equal(t, 24, summary.EventsByType[domain.EventScreenView])
	assert.Equal(t, 1, summary.EventsByType[domain.EventAppOpen])

	require.Len(t, summary.TopScreens, 10)
	// Ties are broken by name
	assert.Equal(t, domain.ScreenCount{Screen: "screen-02", Views: 3}, summary.TopScreens[0])
	assert.Equal(t, domain.ScreenCount{Screen: "screen-05", Views: 3}, summary.TopScreens[1])

	require.NotNil(t, summary.FirstEventAt)
	require.NotNil(t, summary.LastEventAt)
	assert.Equal(t, first, *summary.FirstEventAt)
	assert.Equal(t, clock.Now(), *summary.LastEventAt)
}

func TestAnalyticsService_Clear(t *testing.T) {
	svc, store, _ := newTestAnalyticsService(t, 0)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, "")
	require.NoError(t, err)
	_, err = svc.EndSession(ctx)
	require.NoError(t, err)
	_, err = svc.StartSession(ctx, "")
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx))

	count, err := svc.EventsCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	sessions, err := svc.Sessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	assert.NotNil(t, svc.CurrentSession())
	_, ok := store.Raw(analyticsEventsKey)
	assert.False(t, ok)
}
