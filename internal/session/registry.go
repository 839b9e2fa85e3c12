// Package session tracks currently-active authenticated sessions and their
// lifecycle: creation at login, activity refresh, and termination.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/summithq/summithq-security/internal/audit"
	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/geoip"
	"github.com/summithq/summithq-security/internal/metrics"
	"github.com/summithq/summithq-security/internal/repository"
)

// ErrNotFound is returned when the referenced session does not exist.
var ErrNotFound = errors.New("session not found")

const resourceTypeSession = "session"

// CreateInput describes a session to open after a successful authentication.
type CreateInput struct {
	UserID     int64
	DeviceInfo string
	IPAddress  string
}

// Stats is a point-in-time aggregation over active sessions.
type Stats struct {
	TotalActiveSessions int     `json:"total_active_sessions"`
	UniqueActiveUsers   int     `json:"unique_active_users"`
	AvgSessionsPerUser  float64 `json:"avg_sessions_per_user"`
	ExpiringSoon        int     `json:"expiring_soon"`
}

// Registry is the authoritative source of truth for session liveness. The
// identity provider consults it (or is told synchronously) on termination.
type Registry struct {
	sessions     repository.SessionRepository
	audit        audit.Sink
	geo          *geoip.Client
	ttl          time.Duration
	expiringSoon time.Duration
	logger       *zap.Logger
	tracer       trace.Tracer
	now          func() time.Time
}

func NewRegistry(sessions repository.SessionRepository, sink audit.Sink, geo *geoip.Client, ttl, expiringSoon time.Duration, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if expiringSoon <= 0 {
		expiringSoon = time.Hour
	}
	return &Registry{
		sessions:     sessions,
		audit:        sink,
		geo:          geo,
		ttl:          ttl,
		expiringSoon: expiringSoon,
		logger:       logger,
		tracer:       otel.Tracer("session"),
		now:          time.Now,
	}
}

// Create opens a session. Location enrichment is best-effort; the session is
// created with a null location when the lookup does not complete.
func (r *Registry) Create(ctx context.Context, in CreateInput) (domain.Session, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.Create")
	defer span.End()

	now := r.now().UTC()
	session := domain.Session{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		DeviceInfo:   in.DeviceInfo,
		IPAddress:    in.IPAddress,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(r.ttl),
	}
	if loc := r.geo.BestEffort(ctx, in.IPAddress); loc != nil {
		display := loc.String()
		session.Location = &display
	}

	created, err := r.sessions.Insert(ctx, session)
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

// Get returns one session by ID, terminated or not.
func (r *Registry) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	s, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Session{}, ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// Touch refreshes last_activity on each authenticated request.
func (r *Registry) Touch(ctx context.Context, sessionID string) error {
	if err := r.sessions.Touch(ctx, sessionID, r.now().UTC()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ListActive returns every session that is neither terminated nor expired.
func (r *Registry) ListActive(ctx context.Context) ([]domain.Session, error) {
	sessions, err := r.sessions.ListActive(ctx, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}

// ListActiveForUser returns one user's live sessions.
func (r *Registry) ListActiveForUser(ctx context.Context, userID int64) ([]domain.Session, error) {
	sessions, err := r.sessions.ListActiveByUser(ctx, userID, r.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	return sessions, nil
}

// Terminate irreversibly ends a session. Terminating an already-terminated
// session is a no-op success so admin tooling stays idempotent; an unknown
// session is an error.
func (r *Registry) Terminate(ctx context.Context, sessionID, reason string) error {
	ctx, span := r.tracer.Start(ctx, "Registry.Terminate")
	defer span.End()

	changed, err := r.sessions.Terminate(ctx, sessionID, r.now().UTC(), reason)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		span.RecordError(err)
		return err
	}
	if !changed {
		return nil
	}

	metrics.SessionsTerminatedTotal.Inc()
	r.audit.Append(ctx, audit.Entry{
		Action:       domain.ActionSessionTerminated,
		ResourceType: resourceTypeSession,
		ResourceID:   sessionID,
		NewValue:     map[string]any{"terminated": true},
		Metadata:     map[string]any{"reason": reason},
	})
	return nil
}

// TerminateAll ends every active session of one user and returns how many
// were live immediately before the call.
func (r *Registry) TerminateAll(ctx context.Context, userID int64, reason string) (int, error) {
	ctx, span := r.tracer.Start(ctx, "Registry.TerminateAll")
	defer span.End()

	count, err := r.sessions.TerminateAllForUser(ctx, userID, r.now().UTC(), reason)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}

	metrics.SessionsTerminatedTotal.Add(float64(count))
	r.logger.Info("terminated user sessions",
		zap.Int64("user_id", userID),
		zap.Int("count", count),
		zap.String("reason", reason),
	)
	r.audit.Append(ctx, audit.Entry{
		Action:       domain.ActionSessionsTerminated,
		ResourceType: "user",
		ResourceID:   strconv.FormatInt(userID, 10),
		Metadata:     map[string]any{"reason": reason, "count": count},
	})
	return count, nil
}

// Stats aggregates the active session set. Pure read; no side effects.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	now := r.now().UTC()
	active, err := r.sessions.ListActive(ctx, now)
	if err != nil {
		return Stats{}, fmt.Errorf("session stats: %w", err)
	}

	users := make(map[int64]struct{})
	soonCutoff := now.Add(r.expiringSoon)
	stats := Stats{TotalActiveSessions: len(active)}
	for _, s := range active {
		users[s.UserID] = struct{}{}
		if s.ExpiresAt.Before(soonCutoff) {
			stats.ExpiringSoon++
		}
	}
	stats.UniqueActiveUsers = len(users)
	if stats.UniqueActiveUsers > 0 {
		stats.AvgSessionsPerUser = float64(stats.TotalActiveSessions) / float64(stats.UniqueActiveUsers)
	}
	return stats, nil
}
