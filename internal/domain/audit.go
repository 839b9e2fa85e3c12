package domain

import "time"

// AuditAction identifies a state-changing operation in the audit trail.
type AuditAction string

const (
	ActionAccountLocked      AuditAction = "account.locked"
	ActionAccountUnlocked    AuditAction = "account.unlocked"
	ActionSessionTerminated  AuditAction = "session.terminated"
	ActionSessionsTerminated AuditAction = "session.bulk_terminated"
	ActionEventResolved      AuditAction = "security_event.resolved"
)

// AuditEntry is an immutable record of who changed what. ActorID is nil for
// system-initiated actions (automatic lockouts, expiry unlocks).
type AuditEntry struct {
	ID           int64
	ActorID      *int64
	Action       AuditAction
	ResourceType string
	ResourceID   string
	OldValue     map[string]any
	NewValue     map[string]any
	Metadata     map[string]any
	IPAddress    *string
	UserAgent    string
	CreatedAt    time.Time
}
