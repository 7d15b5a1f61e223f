// Package store persists the command audit trail. Session state never
// touches the database; only the record of what ran, where, and whether
// it succeeded.
package store

import (
	"context"
	"time"
)

// AuditEvent is one recorded command execution.
type AuditEvent struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	WorkspaceID string    `json:"workspace_id"`
	Command     string    `json:"command"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the audit-event database.
type Store interface {
	// RecordEvent appends one audit event.
	RecordEvent(ctx context.Context, ev *AuditEvent) error

	// ListEvents returns the most recent events for a session, newest
	// first. A zero limit defaults to 100.
	ListEvents(ctx context.Context, sessionID string, limit int) ([]*AuditEvent, error)

	// PruneEvents deletes events older than before and reports how many
	// rows were removed.
	PruneEvents(ctx context.Context, before time.Time) (int64, error)

	Close() error
}
