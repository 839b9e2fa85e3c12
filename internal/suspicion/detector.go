// Package suspicion classifies logins and active sessions as anomalous.
// Detection only reads; recording flagged activity is the caller's job.
package suspicion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/repository"
)

const newIPReason = "Login from new IP address"

// LoginCheck is the outcome of a login heuristic.
type LoginCheck struct {
	Suspicious bool
	Reason     string
}

// Detector aggregates session rules and the login IP heuristic.
type Detector struct {
	attempts repository.AttemptRepository
	sessions repository.SessionRepository
	rules    []SessionRule
	now      func() time.Time
}

func NewDetector(attempts repository.AttemptRepository, sessions repository.SessionRepository, rules ...SessionRule) *Detector {
	if len(rules) == 0 {
		rules = []SessionRule{ConcurrentOriginsRule{}, SessionCountRule{}}
	}
	return &Detector{
		attempts: attempts,
		sessions: sessions,
		rules:    rules,
		now:      time.Now,
	}
}

// DetectLogin compares currentIP against the user's most recent successful
// attempt prior to attemptID. A mismatch alone is reported as suspicious;
// this is deliberately conservative and low-precision.
func (d *Detector) DetectLogin(ctx context.Context, userID int64, currentIP string, attemptID int64) (LoginCheck, error) {
	if currentIP == "" {
		return LoginCheck{}, nil
	}

	previous, err := d.attempts.PreviousSuccessful(ctx, userID, attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// First successful login on record; nothing to compare against.
			return LoginCheck{}, nil
		}
		return LoginCheck{}, fmt.Errorf("detect suspicious login: %w", err)
	}

	if previous.IPAddress != "" && previous.IPAddress != currentIP {
		return LoginCheck{Suspicious: true, Reason: newIPReason}, nil
	}
	return LoginCheck{}, nil
}

// DetectSessions returns the currently active sessions flagged by any rule,
// deduplicated, in the order the session list returns them. Deterministic
// and side-effect-free.
func (d *Detector) DetectSessions(ctx context.Context) ([]domain.Session, error) {
	active, err := d.sessions.ListActive(ctx, d.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("detect suspicious sessions: %w", err)
	}

	flagged := make(map[string]struct{})
	for _, rule := range d.rules {
		for _, id := range rule.Flag(active) {
			flagged[id] = struct{}{}
		}
	}

	var result []domain.Session
	for _, s := range active {
		if _, ok := flagged[s.ID]; ok {
			result = append(result, s)
		}
	}
	return result, nil
}
