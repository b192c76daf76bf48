package domain

import (
	"maps"
	"slices"
	"time"
)

// EventType identifies an analytics event
type EventType string

const (
	EventAppOpen       EventType = "app_open"
	EventAppClose      EventType = "app_close"
	EventScreenView    EventType = "screen_view"
	EventLogin         EventType = "login"
	EventLogout        EventType = "logout"
	EventSignup        EventType = "signup"
	EventJobView       EventType = "job_view"
	EventJobCreate     EventType = "job_create"
	EventJobApply      EventType = "job_apply"
	EventWorkOrderOpen EventType = "work_order_open"
	EventReviewSubmit  EventType = "review_submit"
	EventSearch        EventType = "search"
	EventShare         EventType = "share"
	EventError         EventType = "error"
)

// DeviceInfo identifies the platform an event originated from
type DeviceInfo struct {
	Platform   string `json:"platform"`
	OSVersion  string `json:"osVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`
}

// AnalyticsEvent is one recorded application event
type AnalyticsEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Data      map[string]any `json:"data,omitempty"`
	Screen    string         `json:"screen,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"sessionId,omitempty"`
	Device    DeviceInfo     `json:"device"`
}

// AnalyticsSession groups the events of one bounded usage interval
type AnalyticsSession struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId,omitempty"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`
	Events    []*AnalyticsEvent `json:"events"`
	Screens   []string          `json:"screens"`
}

// IsActive reports whether the session has not been ended
func (s *AnalyticsSession) IsActive() bool {
	return s.EndedAt == nil
}

// Duration returns the session length, measured to now when still active
func (s *AnalyticsSession) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// AddEvent appends the event and records its screen once
func (s *AnalyticsSession) AddEvent(e *AnalyticsEvent) {
	s.Events = append(s.Events, e)
	if e.Screen != "" && !slices.Contains(s.Screens, e.Screen) {
		s.Screens = append(s.Screens, e.Screen)
	}
}

// Clone returns a copy that shares no slices with s
func (s *AnalyticsSession) Clone() *AnalyticsSession {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	c.Events = make([]*AnalyticsEvent, len(s.Events))
	for i, e := range s.Events {
		ec := *e
		ec.Data = maps.Clone(e.Data)
		c.Events[i] = &ec
	}
	c.Screens = slices.Clone(s.Screens)
	if c.Screens == nil {
		c.Screens = []string{}
	}
	return &c
}

// ScreenCount is a screen name with its number of views
type ScreenCount struct {
	Screen string `json:"screen"`
	Views  int    `json:"views"`
}

// AnalyticsSummary aggregates the persisted event log
type AnalyticsSummary struct {
	TotalEvents    int               `json:"totalEvents"`
	TotalSessions  int               `json:"totalSessions"`
	EventsByType   map[EventType]int `json:"eventsByType"`
	TopScreens     []ScreenCount     `json:"topScreens"`
	FirstEventAt   *time.Time        `json:"firstEventAt,omitempty"`
	LastEventAt    *time.Time        `json:"lastEventAt,omitempty"`
	CurrentSession string            `json:"currentSession,omitempty"`
}
