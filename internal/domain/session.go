package domain

import "time"

// Session is a live authenticated context tied to a device and IP. A session
// ends by natural expiry or explicit termination; once terminated the row is
// immutable.
type Session struct {
	ID               string
	UserID           int64
	DeviceInfo       string
	Location         *string
	IPAddress        string
	CreatedAt        time.Time
	LastActivity     time.Time
	ExpiresAt        time.Time
	TerminatedAt     *time.Time
	TerminatedReason *string
}

// Active reports whether the session is usable at the given instant.
func (s Session) Active(now time.Time) bool {
	return s.TerminatedAt == nil && s.ExpiresAt.After(now)
}
