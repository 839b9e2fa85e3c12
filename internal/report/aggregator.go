// Package report builds the read-only security rollups consumed by the admin
// dashboards, and handles security-event acknowledgement.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/summithq/summithq-security/internal/audit"
	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/repository"
	"github.com/summithq/summithq-security/internal/session"
)

// ErrEventNotFound is returned when acknowledging an unknown event.
var ErrEventNotFound = errors.New("security event not found")

const defaultLimit = 50

// SecurityMetrics is the dashboard overview.
type SecurityMetrics struct {
	ActiveSessions   int     `json:"active_sessions"`
	ActiveUsers      int     `json:"active_users"`
	FailedLogins24h  int     `json:"failed_logins_24h"`
	LockedAccounts   int     `json:"locked_accounts"`
	UnresolvedEvents int     `json:"unresolved_events"`
	AvgSessionsUser  float64 `json:"avg_sessions_per_user"`
}

// Aggregator reads across the security stores. Apart from ResolveEvent it
// never writes.
type Aggregator struct {
	attempts repository.AttemptRepository
	events   repository.EventRepository
	auditLog repository.AuditRepository
	settings repository.SettingsRepository
	registry *session.Registry
	sink     audit.Sink
	tracer   trace.Tracer
	now      func() time.Time
}

func NewAggregator(
	attempts repository.AttemptRepository,
	events repository.EventRepository,
	auditLog repository.AuditRepository,
	settings repository.SettingsRepository,
	registry *session.Registry,
	sink audit.Sink,
) *Aggregator {
	return &Aggregator{
		attempts: attempts,
		events:   events,
		auditLog: auditLog,
		settings: settings,
		registry: registry,
		sink:     sink,
		tracer:   otel.Tracer("report"),
		now:      time.Now,
	}
}

// Overview assembles the headline metrics.
func (a *Aggregator) Overview(ctx context.Context) (SecurityMetrics, error) {
	ctx, span := a.tracer.Start(ctx, "Aggregator.Overview")
	defer span.End()

	stats, err := a.registry.Stats(ctx)
	if err != nil {
		span.RecordError(err)
		return SecurityMetrics{}, fmt.Errorf("security metrics: %w", err)
	}
	failed, err := a.attempts.CountFailedSince(ctx, a.now().UTC().Add(-24*time.Hour))
	if err != nil {
		span.RecordError(err)
		return SecurityMetrics{}, fmt.Errorf("security metrics: %w", err)
	}
	locked, err := a.settings.CountLocked(ctx)
	if err != nil {
		span.RecordError(err)
		return SecurityMetrics{}, fmt.Errorf("security metrics: %w", err)
	}
	unresolved, err := a.events.CountUnresolved(ctx)
	if err != nil {
		span.RecordError(err)
		return SecurityMetrics{}, fmt.Errorf("security metrics: %w", err)
	}

	return SecurityMetrics{
		ActiveSessions:   stats.TotalActiveSessions,
		ActiveUsers:      stats.UniqueActiveUsers,
		FailedLogins24h:  failed,
		LockedAccounts:   locked,
		UnresolvedEvents: unresolved,
		AvgSessionsUser:  stats.AvgSessionsPerUser,
	}, nil
}

// RecentActivity returns the newest audit entries for the activity feed.
func (a *Aggregator) RecentActivity(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	entries, err := a.auditLog.Recent(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	return entries, nil
}

// ResourceActivity returns the audit trail of one resource, newest first.
func (a *Aggregator) ResourceActivity(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.AuditEntry, error) {
	entries, err := a.auditLog.ByResource(ctx, resourceType, resourceID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("resource activity: %w", err)
	}
	return entries, nil
}

// RecentAttempts returns the newest login attempts.
func (a *Aggregator) RecentAttempts(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	attempts, err := a.attempts.Recent(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	return attempts, nil
}

// Events returns the newest security events.
func (a *Aggregator) Events(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	events, err := a.events.Recent(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("security events: %w", err)
	}
	return events, nil
}

// ResolveEvent acknowledges a security event. Resolving an already-resolved
// event is a no-op success; resolving an unknown one is an error.
func (a *Aggregator) ResolveEvent(ctx context.Context, eventID string) error {
	changed, err := a.events.Resolve(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEventNotFound
		}
		return err
	}
	if changed {
		a.sink.Append(ctx, audit.Entry{
			Action:       domain.ActionEventResolved,
			ResourceType: "security_event",
			ResourceID:   eventID,
			NewValue:     map[string]any{"resolved": true},
		})
	}
	return nil
}

// TopFailedIPs ranks origins of failed attempts over the last 24 hours.
func (a *Aggregator) TopFailedIPs(ctx context.Context, limit int) ([]domain.FailedIPCount, error) {
	counts, err := a.attempts.TopFailedIPs(ctx, a.now().UTC().Add(-24*time.Hour), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("top failed ips: %w", err)
	}
	return counts, nil
}

// LoginTrends returns per-day attempt outcomes for the last `days` days.
func (a *Aggregator) LoginTrends(ctx context.Context, days int) ([]domain.LoginTrend, error) {
	if days <= 0 || days > 90 {
		days = 7
	}
	trends, err := a.attempts.DailyTrends(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("login trends: %w", err)
	}
	return trends, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultLimit
	}
	return limit
}
