package repository

import (
	"context"
	"errors"
	"time"

	"github.com/summithq/summithq-security/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SettingsRepository owns the per-user security settings rows.
//
// IncrementFailures and TryLock together implement the atomic
// increment-then-compare contract: IncrementFailures is a single upsert that
// returns the post-increment count and current lock flag, and TryLock is a
// conditional update that succeeds for exactly one caller when several race
// past the threshold at once.
type SettingsRepository interface {
	Get(ctx context.Context, userID int64) (domain.SecuritySettings, error)
	// IncrementFailures adds one failure, creating the row when absent, and
	// returns the post-increment count and whether the account was already
	// locked at that point.
	IncrementFailures(ctx context.Context, userID int64, at time.Time) (count int, locked bool, err error)
	ResetFailures(ctx context.Context, userID int64) error
	// TryLock locks the account only if it is currently unlocked and the
	// failure count has reached minFailures. The counter is zeroed in the
	// same statement. Returns true for the single caller that won.
	TryLock(ctx context.Context, userID int64, until *time.Time, reason string, minFailures int) (bool, error)
	// Lock unconditionally locks the account (administrative path),
	// creating the settings row when absent. A nil until means permanent.
	Lock(ctx context.Context, userID int64, until *time.Time, reason string) error
	// Unlock clears the lock and zeroes the failure counter. Returns whether
	// the account was actually locked, so callers can audit only real
	// transitions.
	Unlock(ctx context.Context, userID int64) (bool, error)
	CountLocked(ctx context.Context) (int, error)
}

// AttemptRepository stores the append-only login attempt log.
type AttemptRepository interface {
	Insert(ctx context.Context, attempt domain.LoginAttempt) (domain.LoginAttempt, error)
	// PreviousSuccessful returns the most recent successful attempt for the
	// user older than beforeID, so a just-recorded attempt does not compare
	// against itself.
	PreviousSuccessful(ctx context.Context, userID int64, beforeID int64) (domain.LoginAttempt, error)
	Recent(ctx context.Context, limit int) ([]domain.LoginAttempt, error)
	CountFailedSince(ctx context.Context, since time.Time) (int, error)
	TopFailedIPs(ctx context.Context, since time.Time, limit int) ([]domain.FailedIPCount, error)
	DailyTrends(ctx context.Context, days int) ([]domain.LoginTrend, error)
}

// EventRepository stores security events. Insert-only apart from Resolve.
type EventRepository interface {
	Insert(ctx context.Context, event domain.SecurityEvent) (domain.SecurityEvent, error)
	Recent(ctx context.Context, limit int) ([]domain.SecurityEvent, error)
	// Resolve flips the resolved flag. Returns false when the event exists
	// but was already resolved; ErrNotFound when it does not exist.
	Resolve(ctx context.Context, eventID string) (bool, error)
	CountUnresolved(ctx context.Context) (int, error)
}

// AuditRepository stores the strictly append-only audit trail.
type AuditRepository interface {
	Insert(ctx context.Context, entry domain.AuditEntry) error
	Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error)
	ByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.AuditEntry, error)
}

// SessionRepository tracks authenticated sessions.
type SessionRepository interface {
	Insert(ctx context.Context, session domain.Session) (domain.Session, error)
	Get(ctx context.Context, sessionID string) (domain.Session, error)
	// Touch refreshes last_activity on a live session.
	Touch(ctx context.Context, sessionID string, at time.Time) error
	ListActive(ctx context.Context, now time.Time) ([]domain.Session, error)
	ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]domain.Session, error)
	// Terminate marks the session terminated. Returns false when the session
	// was already terminated; ErrNotFound when it does not exist.
	Terminate(ctx context.Context, sessionID string, at time.Time, reason string) (bool, error)
	TerminateAllForUser(ctx context.Context, userID int64, at time.Time, reason string) (int, error)
}

// UserDirectory resolves identities owned by the external identity provider.
// This core only reads from it.
type UserDirectory interface {
	LookupByEmail(ctx context.Context, email string) (int64, error)
}
