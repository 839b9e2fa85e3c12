package domain

import "time"

// SecuritySettings is the per-user account security record. One row per user,
// created lazily on the first recorded failure or first administrative action
// and mutated only by the lockout engine.
type SecuritySettings struct {
	UserID           int64
	FailedLoginCount int
	AccountLocked    bool
	LockedUntil      *time.Time
	LockedReason     *string
	TwoFactorEnabled bool
	LastFailedLogin  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PermanentlyLocked reports whether the account is locked with no expiry.
// A nil LockedUntil on a locked account means only an administrator can
// release it.
func (s SecuritySettings) PermanentlyLocked() bool {
	return s.AccountLocked && s.LockedUntil == nil
}

// LoginAttempt is a single authentication try. Rows are append-only; UserID
// is nil when the submitted email did not resolve to a known user.
type LoginAttempt struct {
	ID            int64
	UserID        *int64
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason *string
	CreatedAt     time.Time
}

// EventType classifies a security event.
type EventType string

const (
	EventBruteForce        EventType = "brute_force"
	EventAccountLocked     EventType = "account_locked"
	EventSuspiciousLogin   EventType = "suspicious_login"
	EventSuspiciousSession EventType = "suspicious_session"
)

// Severity grades a security event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SecurityEvent is a recorded, resolvable incident. The only mutation ever
// applied after insert is flipping Resolved via an explicit acknowledgement.
type SecurityEvent struct {
	ID          string
	Type        EventType
	Severity    Severity
	UserID      *int64
	Description string
	Metadata    map[string]any
	Resolved    bool
	CreatedAt   time.Time
}

// FailedIPCount aggregates failed attempts per origin address.
type FailedIPCount struct {
	IPAddress string
	Count     int
}

// LoginTrend is a per-day rollup of attempt outcomes.
type LoginTrend struct {
	Day       time.Time
	Succeeded int
	Failed    int
}
