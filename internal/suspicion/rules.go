package suspicion

import "github.com/summithq/summithq-security/internal/domain"

// SessionRule is one heuristic over the current active session set. Rules
// are pure: they read their input and return the IDs of sessions they flag.
type SessionRule interface {
	Name() string
	Flag(sessions []domain.Session) []string
}

// ConcurrentOriginsRule flags every session of a user who is simultaneously
// active from more than one distinct IP/device pair.
type ConcurrentOriginsRule struct{}

func (ConcurrentOriginsRule) Name() string { return "concurrent_origins" }

func (ConcurrentOriginsRule) Flag(sessions []domain.Session) []string {
	origins := make(map[int64]map[string]struct{})
	for _, s := range sessions {
		key := s.IPAddress + "|" + s.DeviceInfo
		if origins[s.UserID] == nil {
			origins[s.UserID] = make(map[string]struct{})
		}
		origins[s.UserID][key] = struct{}{}
	}

	var flagged []string
	for _, s := range sessions {
		if len(origins[s.UserID]) > 1 {
			flagged = append(flagged, s.ID)
		}
	}
	return flagged
}

// SessionCountRule flags all sessions of users holding more than Max active
// sessions at once.
type SessionCountRule struct {
	Max int
}

func (SessionCountRule) Name() string { return "session_count" }

func (r SessionCountRule) Flag(sessions []domain.Session) []string {
	limit := r.Max
	if limit <= 0 {
		limit = 3
	}
	perUser := make(map[int64]int)
	for _, s := range sessions {
		perUser[s.UserID]++
	}

	var flagged []string
	for _, s := range sessions {
		if perUser[s.UserID] > limit {
			flagged = append(flagged, s.ID)
		}
	}
	return flagged
}
