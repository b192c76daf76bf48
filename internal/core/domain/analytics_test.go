package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyticsSession_AddEvent(t *testing.T) {
	s := &AnalyticsSession{ID: "s1", StartedAt: time.Now()}

	s.AddEvent(&AnalyticsEvent{ID: "e1", Type: EventScreenView, Screen: "JobList"})
	s.AddEvent(&AnalyticsEvent{ID: "e2", Type: EventJobView, Screen: "JobDetail"})
	s.AddEvent(&AnalyticsEvent{ID: "e3", Type: EventScreenView, Screen: "JobList"})
	s.AddEvent(&AnalyticsEvent{ID: "e4", Type: EventSearch})

	assert.Len(t, s.Events, 4)
	assert.Equal(t, []string{"JobList", "JobDetail"}, s.Screens)
}

func TestAnalyticsSession_Duration(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	s := &AnalyticsSession{StartedAt: start}

	assert.True(t, s.IsActive())
	assert.Equal(t, 10*time.Minute, s.Duration(start.Add(10*time.Minute)))

	end := start.Add(3 * time.Minute)
	s.EndedAt = &end
	assert.False(t, s.IsActive())
	assert.Equal(t, 3*time.Minute, s.Duration(start.Add(time.Hour)))
}

func TestAnalyticsSession_Clone(t *testing.T) {
	s := &AnalyticsSession{ID: "s1", StartedAt: time.Now()}
	s.AddEvent(&AnalyticsEvent{ID: "e1", Screen: "Home", Data: map[string]any{"k": "v"}})

	c := s.Clone()
	c.Screens[0] = "Changed"
	c.Events[0].Data["k"] = "changed"
	c.Events = append(c.Events, &AnalyticsEvent{ID: "e2"})

	require.Len(t, s.Events, 1)
	assert.Equal(t, "Home", s.Screens[0])
	assert.Equal(t, "v", s.Events[0].Data["k"])
}

func TestCloudSyncConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     CloudSyncConfig
		wantErr bool
	}{
		{"valid", CloudSyncConfig{APIURL: "https://api.agrolink.example", APIKey: "k-123", UserID: "u1"}, false},
		{"missing url", CloudSyncConfig{APIKey: "k"}, true},
		{"relative url", CloudSyncConfig{APIURL: "/sync", APIKey: "k"}, true},
		{"ftp url", CloudSyncConfig{APIURL: "ftp://host", APIKey: "k"}, true},
		{"missing key", CloudSyncConfig{APIURL: "https://api.agrolink.example"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCloudSyncConfig_Redacted(t *testing.T) {
	cfg := &CloudSyncConfig{APIURL: "https://x", APIKey: "secret-key-1234", UserID: "u"}
	r := cfg.Redacted()

	assert.Equal(t, "***********1234", r.APIKey)
	assert.Equal(t, "secret-key-1234", cfg.APIKey, "original must be untouched")

	short := (&CloudSyncConfig{APIKey: "abc"}).Redacted()
	assert.Equal(t, "****", short.APIKey)
}

func TestDataExport_Counts(t *testing.T) {
	e := &DataExport{
		Collections: map[EntityType][]*Record{
			EntityTypeJob:  {{ID: "j1"}, {ID: "j2"}},
			EntityTypeUser: {{ID: "u1"}},
		},
	}
	counts := e.Counts()
	assert.Equal(t, 2, counts[EntityTypeJob])
	assert.Equal(t, 1, counts[EntityTypeUser])
	assert.Zero(t, counts[EntityTypeReview])
}
