package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recordTestEvent is a helper that inserts an audit event and returns it.
func recordTestEvent(t *testing.T, s *SQLiteStore, sessionID, command string, success bool, at time.Time) *AuditEvent {
	t.Helper()
	ev := &AuditEvent{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		WorkspaceID: "ws-" + sessionID,
		Command:     command,
		Success:     success,
		CreatedAt:   at,
	}
	if !success {
		ev.Error = "element not found"
	}
	if err := s.RecordEvent(context.Background(), ev); err != nil {
		t.Fatalf("recordTestEvent(%s): %v", command, err)
	}
	return ev
}

func TestRecordAndListEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	recordTestEvent(t, s, "session_a", "navigate", true, now.Add(-2*time.Minute))
	recordTestEvent(t, s, "session_a", "click", false, now.Add(-time.Minute))
	recordTestEvent(t, s, "session_b", "screenshot", true, now)

	events, err := s.ListEvents(ctx, "session_a", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("ListEvents: got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].Command != "click" || events[1].Command != "navigate" {
		t.Errorf("order: got %q, %q", events[0].Command, events[1].Command)
	}
	if events[0].Success {
		t.Error("click event should be a failure")
	}
	if events[0].Error != "element not found" {
		t.Errorf("error message: got %q", events[0].Error)
	}
	if events[0].WorkspaceID != "ws-session_a" {
		t.Errorf("workspace id: got %q", events[0].WorkspaceID)
	}

	events, err = s.ListEvents(ctx, "session_missing", 0)
	if err != nil {
		t.Fatalf("ListEvents missing: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("ListEvents missing: got %d events", len(events))
	}
}

func TestListEventsLimit(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	for i := 0; i < 5; i++ {
		recordTestEvent(t, s, "session_a", "navigate", true, now.Add(time.Duration(i)*time.Second))
	}

	events, err := s.ListEvents(context.Background(), "session_a", 3)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("limit: got %d events, want 3", len(events))
	}
}

func TestPruneEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	recordTestEvent(t, s, "session_a", "navigate", true, now.Add(-48*time.Hour))
	recordTestEvent(t, s, "session_a", "click", true, now.Add(-36*time.Hour))
	recordTestEvent(t, s, "session_a", "screenshot", true, now)

	n, err := s.PruneEvents(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneEvents: %v", err)
	}
	if n != 2 {
		t.Errorf("PruneEvents: got %d removed, want 2", n)
	}

	events, err := s.ListEvents(ctx, "session_a", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 || events[0].Command != "screenshot" {
		t.Errorf("after prune: got %v", events)
	}
}
