package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEntityTypeConstants(t *testing.T) {
	if EntityTypeUser != "user" {
		t.Errorf("expected EntityTypeUser = 'user', got %s", EntityTypeUser)
	}
	if EntityTypeJob != "job" {
		t.Errorf("expected EntityTypeJob = 'job', got %s", EntityTypeJob)
	}
	if EntityTypeWorkOrder != "work_order" {
		t.Errorf("expected EntityTypeWorkOrder = 'work_order', got %s", EntityTypeWorkOrder)
	}
	if EntityTypeReview != "review" {
		t.Errorf("expected EntityTypeReview = 'review', got %s", EntityTypeReview)
	}
}

func TestEntityType_IsValid(t *testing.T) {
	for _, et := range []EntityType{EntityTypeUser, EntityTypeJob, EntityTypeWorkOrder, EntityTypeReview} {
		if !et.IsValid() {
			t.Errorf("expected %s to be valid", et)
		}
	}
	if EntityType("tractor").IsValid() {
		t.Error("expected unregistered type to be invalid")
	}
}

func TestRegisterEntityType(t *testing.T) {
	custom := EntityType("harvest_lot")
	if err := RegisterEntityType(custom); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !custom.IsValid() {
		t.Error("expected registered type to be valid")
	}

	before := len(EntityTypes())
	if err := RegisterEntityType(custom); err != nil {
		t.Fatalf("unexpected error on re-register: %v", err)
	}
	if len(EntityTypes()) != before {
		t.Error("re-registering should not duplicate the type")
	}

	if err := RegisterEntityType(""); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for empty type, got %v", err)
	}
}

func TestSyncAction_IsValid(t *testing.T) {
	tests := []struct {
		action SyncAction
		want   bool
	}{
		{SyncActionCreate, true},
		{SyncActionUpdate, true},
		{SyncActionDelete, true},
		{SyncAction("upsert"), false},
		{SyncAction(""), false},
	}
	for _, tt := range tests {
		if got := tt.action.IsValid(); got != tt.want {
			t.Errorf("%q.IsValid() = %v, want %v", tt.action, got, tt.want)
		}
	}
}

func TestDefaultSyncStatus(t *testing.T) {
	s := DefaultSyncStatus()
	if s.LastSyncAt != nil {
		t.Error("expected nil LastSyncAt")
	}
	if s.PendingChanges != 0 {
		t.Errorf("expected 0 pending changes, got %d", s.PendingChanges)
	}
	if !s.IsOnline {
		t.Error("expected IsOnline true by default")
	}
	if s.SyncInProgress {
		t.Error("expected SyncInProgress false by default")
	}
}

func TestSyncStatusPatch_Apply(t *testing.T) {
	s := DefaultSyncStatus()
	now := time.Now()
	offline := false
	pending := 7

	SyncStatusPatch{IsOnline: &offline, PendingChanges: &pending, LastSyncAt: &now}.Apply(s)

	if s.IsOnline {
		t.Error("expected IsOnline false after patch")
	}
	if s.PendingChanges != 7 {
		t.Errorf("expected 7 pending changes, got %d", s.PendingChanges)
	}
	if s.LastSyncAt == nil || !s.LastSyncAt.Equal(now) {
		t.Error("expected LastSyncAt to be set")
	}
	if s.SyncInProgress {
		t.Error("nil field should leave SyncInProgress unchanged")
	}

	// Patch copies the time value
	now = now.Add(time.Hour)
	if s.LastSyncAt.Equal(now) {
		t.Error("patch should not alias the caller's time")
	}
}

func TestEnqueueRequest_Validate(t *testing.T) {
	ok := EnqueueRequest{Type: EntityTypeJob, Action: SyncActionCreate}
	if err := ok.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	badType := EnqueueRequest{Type: "barn", Action: SyncActionCreate}
	if err := badType.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}

	badAction := EnqueueRequest{Type: EntityTypeJob, Action: "patch"}
	if err := badAction.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSyncQueue_FindAndWithout(t *testing.T) {
	q := NewSyncQueue()
	q.Items = append(q.Items,
		&SyncQueueItem{ID: "a"},
		&SyncQueueItem{ID: "b"},
		&SyncQueueItem{ID: "c"},
	)

	if q.Find("b") == nil {
		t.Error("expected to find b")
	}
	if q.Find("z") != nil {
		t.Error("expected nil for missing id")
	}

	kept := q.Without("b")
	if len(kept) != 2 || kept[0].ID != "a" || kept[1].ID != "c" {
		t.Errorf("expected [a c] in order, got %v", kept)
	}
	if q.Len() != 3 {
		t.Error("Without should not mutate the queue")
	}
}

func TestSyncQueue_JSONShape(t *testing.T) {
	data, err := json.Marshal(NewSyncQueue())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"items":[],"lastProcessed":null}` {
		t.Errorf("unexpected empty queue encoding: %s", data)
	}
}

func TestSyncQueueItem_Clone(t *testing.T) {
	now := time.Now()
	item := &SyncQueueItem{
		ID:            "x",
		Data:          json.RawMessage(`{"title":"Harvest helper"}`),
		LastAttemptAt: &now,
	}
	c := item.Clone()
	c.Data[2] = 'X'
	c.RetryCount = 4
	*c.LastAttemptAt = now.Add(time.Hour)

	if string(item.Data) != `{"title":"Harvest helper"}` {
		t.Error("clone should not share Data")
	}
	if item.RetryCount != 0 {
		t.Error("clone should not share RetryCount")
	}
	if !item.LastAttemptAt.Equal(now) {
		t.Error("clone should not share LastAttemptAt")
	}
}

func TestDrainResult_Total(t *testing.T) {
	r := &DrainResult{Success: 2, Failed: 3, Abandoned: 1}
	if r.Total() != 5 {
		t.Errorf("expected total 5, got %d", r.Total())
	}
}

func TestSyncMetadata_MarkPending(t *testing.T) {
	var m SyncMetadata
	now := time.Now()

	m.MarkPending(now)
	m.MarkPending(now.Add(time.Second))

	if m.LocalVersion != 2 {
		t.Errorf("expected LocalVersion 2, got %d", m.LocalVersion)
	}
	if m.Status != SyncItemPending {
		t.Errorf("expected pending status, got %s", m.Status)
	}
	if !m.LastModified.Equal(now.Add(time.Second)) {
		t.Error("expected LastModified to track the latest call")
	}
	if m.ServerVersion != nil {
		t.Error("MarkPending should not touch ServerVersion")
	}
}
