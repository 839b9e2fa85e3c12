package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/summithq/summithq-security/internal/audit"
	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/geoip"
	"github.com/summithq/summithq-security/internal/repository"
	"github.com/summithq/summithq-security/internal/session"
)

func newTestRegistry(repo repository.SessionRepository, sink audit.Sink) *session.Registry {
	geo := geoip.NewClient("", 0, zap.NewNop())
	return session.NewRegistry(repo, sink, geo, 24*time.Hour, time.Hour, zap.NewNop())
}

func TestCreateSetsExpiry(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySessionRepo()
	registry := newTestRegistry(repo, noopSink{})

	created, err := registry.Create(ctx, session.CreateInput{UserID: 1, DeviceInfo: "Firefox on Linux", IPAddress: "10.0.0.1"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, int64(1), created.UserID)
	require.WithinDuration(t, time.Now().Add(24*time.Hour), created.ExpiresAt, time.Minute)
	require.True(t, created.Active(time.Now()))
}

func TestTerminateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySessionRepo()
	sink := &recordingSink{}
	registry := newTestRegistry(repo, sink)

	created, err := registry.Create(ctx, session.CreateInput{UserID: 1})
	require.NoError(t, err)

	require.NoError(t, registry.Terminate(ctx, created.ID, "admin action"))
	require.Len(t, sink.entries, 1)
	require.Equal(t, domain.ActionSessionTerminated, sink.entries[0].Action)

	// Second terminate: no-op success, no second audit entry.
	require.NoError(t, registry.Terminate(ctx, created.ID, "admin action"))
	require.Len(t, sink.entries, 1)

	require.ErrorIs(t, registry.Terminate(ctx, "no-such-session", "admin action"), session.ErrNotFound)
}

func TestTerminateAllReportsCount(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySessionRepo()
	sink := &recordingSink{}
	registry := newTestRegistry(repo, sink)

	for i := 0; i < 3; i++ {
		_, err := registry.Create(ctx, session.CreateInput{UserID: 7})
		require.NoError(t, err)
	}
	_, err := registry.Create(ctx, session.CreateInput{UserID: 8})
	require.NoError(t, err)

	count, err := registry.TerminateAll(ctx, 7, "account compromised")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Len(t, sink.entries, 1)
	require.Equal(t, domain.ActionSessionsTerminated, sink.entries[0].Action)
	require.Equal(t, 3, sink.entries[0].Metadata["count"])

	// No live sessions left: count zero, no audit entry.
	count, err = registry.TerminateAll(ctx, 7, "account compromised")
	require.NoError(t, err)
	require.Zero(t, count)
	require.Len(t, sink.entries, 1)

	active, err := registry.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, int64(8), active[0].UserID)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySessionRepo()
	registry := newTestRegistry(repo, noopSink{})

	// Empty registry: zeroes, no division by zero.
	stats, err := registry.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalActiveSessions)
	require.Zero(t, stats.AvgSessionsPerUser)

	for i := 0; i < 2; i++ {
		_, err := registry.Create(ctx, session.CreateInput{UserID: 1})
		require.NoError(t, err)
	}
	_, err = registry.Create(ctx, session.CreateInput{UserID: 2})
	require.NoError(t, err)

	// One session about to expire.
	soon := time.Now().UTC().Add(30 * time.Minute)
	repo.sessions[0].ExpiresAt = soon

	stats, err = registry.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalActiveSessions)
	require.Equal(t, 2, stats.UniqueActiveUsers)
	require.InDelta(t, 1.5, stats.AvgSessionsPerUser, 0.001)
	require.Equal(t, 1, stats.ExpiringSoon)
}

func TestGetAndListForUser(t *testing.T) {
	ctx := context.Background()
	repo := newMemorySessionRepo()
	registry := newTestRegistry(repo, noopSink{})

	created, err := registry.Create(ctx, session.CreateInput{UserID: 5})
	require.NoError(t, err)
	_, err = registry.Create(ctx, session.CreateInput{UserID: 6})
	require.NoError(t, err)

	got, err := registry.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.ID, got.ID)

	_, err = registry.Get(ctx, "missing")
	require.ErrorIs(t, err, session.ErrNotFound)

	mine, err := registry.ListActiveForUser(ctx, 5)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, created.ID, mine[0].ID)
}

func TestTouchUnknownSession(t *testing.T) {
	registry := newTestRegistry(newMemorySessionRepo(), noopSink{})
	require.ErrorIs(t, registry.Touch(context.Background(), "missing"), session.ErrNotFound)
}

type memorySessionRepo struct {
	sessions []*domain.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{}
}

func (m *memorySessionRepo) Insert(ctx context.Context, s domain.Session) (domain.Session, error) {
	copied := s
	m.sessions = append(m.sessions, &copied)
	return s, nil
}

func (m *memorySessionRepo) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	for _, s := range m.sessions {
		if s.ID == sessionID {
			return *s, nil
		}
	}
	return domain.Session{}, repository.ErrNotFound
}

func (m *memorySessionRepo) Touch(ctx context.Context, sessionID string, at time.Time) error {
	for _, s := range m.sessions {
		if s.ID == sessionID && s.TerminatedAt == nil {
			s.LastActivity = at
			return nil
		}
	}
	return repository.ErrNotFound
}

func (m *memorySessionRepo) ListActive(ctx context.Context, now time.Time) ([]domain.Session, error) {
	var active []domain.Session
	for _, s := range m.sessions {
		if s.Active(now) {
			active = append(active, *s)
		}
	}
	return active, nil
}

func (m *memorySessionRepo) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]domain.Session, error) {
	var active []domain.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.Active(now) {
			active = append(active, *s)
		}
	}
	return active, nil
}

func (m *memorySessionRepo) Terminate(ctx context.Context, sessionID string, at time.Time, reason string) (bool, error) {
	for _, s := range m.sessions {
		if s.ID != sessionID {
			continue
		}
		if s.TerminatedAt != nil {
			return false, nil
		}
		s.TerminatedAt = &at
		s.TerminatedReason = &reason
		return true, nil
	}
	return false, repository.ErrNotFound
}

func (m *memorySessionRepo) TerminateAllForUser(ctx context.Context, userID int64, at time.Time, reason string) (int, error) {
	count := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.TerminatedAt == nil {
			s.TerminatedAt = &at
			s.TerminatedReason = &reason
			count++
		}
	}
	return count, nil
}

type noopSink struct{}

func (noopSink) Append(ctx context.Context, entry audit.Entry) {}

type recordingSink struct {
	entries []audit.Entry
}

func (r *recordingSink) Append(ctx context.Context, entry audit.Entry) {
	r.entries = append(r.entries, entry)
}
