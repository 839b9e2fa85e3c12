package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/summithq/summithq-security/internal/attempt"
	"github.com/summithq/summithq-security/internal/audit"
	"github.com/summithq/summithq-security/internal/config"
	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/geoip"
	httptransport "github.com/summithq/summithq-security/internal/http"
	httpHandler "github.com/summithq/summithq-security/internal/http/handler"
	httpmiddleware "github.com/summithq/summithq-security/internal/http/middleware"
	"github.com/summithq/summithq-security/internal/lockout"
	"github.com/summithq/summithq-security/internal/report"
	"github.com/summithq/summithq-security/internal/repository"
	"github.com/summithq/summithq-security/internal/session"
	"github.com/summithq/summithq-security/internal/suspicion"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *fixtures) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixtures{
		settings: newMemorySettingsRepo(),
		attempts: &memoryAttemptRepo{},
		events:   &memoryEventRepo{events: map[string]*domain.SecurityEvent{}},
		auditLog: &memoryAuditRepo{},
		sessions: newMemorySessionRepo(),
		users:    &memoryUserDirectory{users: map[string]int64{"alice@example.com": 1}},
	}

	logger := zap.NewNop()
	sink := audit.NewService(f.auditLog, nil, logger)
	geo := geoip.NewClient("", 0, logger)
	engine := lockout.NewEngine(f.settings, f.events, sink, 5, 30*time.Minute, logger)
	detector := suspicion.NewDetector(f.attempts, f.sessions)
	recorder := attempt.NewRecorder(f.attempts, f.users, f.events, engine, detector, logger)
	registry := session.NewRegistry(f.sessions, sink, geo, 24*time.Hour, time.Hour, logger)
	aggregator := report.NewAggregator(f.attempts, f.events, f.auditLog, f.settings, registry, sink)

	cfg := config.Config{ServiceName: "summithq-security", CORSAllowedOrigins: []string{"*"}}
	handler := httpHandler.NewSecurityHandler(recorder, engine, registry, detector, aggregator)
	router := httptransport.NewRouter(cfg, handler, httpmiddleware.NewAuth(testSecret), nil)
	return router, f
}

func adminToken(t *testing.T, role string) string {
	t.Helper()
	claims := httpmiddleware.AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecordAttemptAndLockoutFlow(t *testing.T) {
	router, f := newTestRouter(t)

	for i := 0; i < 5; i++ {
		w := doJSON(t, router, http.MethodPost, "/hooks/attempts", "", gin.H{
			"email":      "alice@example.com",
			"ip_address": "10.0.0.1",
			"success":    false,
		})
		require.Equal(t, http.StatusNoContent, w.Code)
	}

	require.Len(t, f.attempts.attempts, 5)

	w := doJSON(t, router, http.MethodGet, "/hooks/users/1/lockout", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status lockout.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.True(t, status.IsLocked)
	require.Zero(t, status.AttemptsRemaining)
	require.NotNil(t, status.LockedUntil)
}

func TestRecordAttemptRejectsBadPayload(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/hooks/attempts", "", gin.H{"ip_address": "10.0.0.1"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/admin/security/metrics", "", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(t, router, http.MethodGet, "/admin/security/metrics", adminToken(t, "member"), nil)
	require.Equal(t, http.StatusForbidden, w.Code)

	w = doJSON(t, router, http.MethodGet, "/admin/security/metrics", adminToken(t, "admin"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var metrics report.SecurityMetrics
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &metrics))
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router, f := newTestRouter(t)
	token := adminToken(t, "admin")

	w := doJSON(t, router, http.MethodPost, "/hooks/sessions", "", gin.H{
		"user_id":     1,
		"device_info": "Firefox on Linux",
		"ip_address":  "10.0.0.1",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		ID     string `json:"id"`
		UserID int64  `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Equal(t, int64(1), created.UserID)

	w = doJSON(t, router, http.MethodPost, "/hooks/sessions/"+created.ID+"/touch", "", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodGet, "/admin/sessions/stats", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats session.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 1, stats.TotalActiveSessions)

	// Terminating requires a reason.
	w = doJSON(t, router, http.MethodPost, "/admin/sessions/"+created.ID+"/terminate", token, gin.H{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/admin/sessions/"+created.ID+"/terminate", token, gin.H{"reason": "stolen laptop"})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/admin/sessions/unknown-id/terminate", token, gin.H{"reason": "stolen laptop"})
	require.Equal(t, http.StatusNotFound, w.Code)

	// The termination was audited with the acting administrator.
	require.NotEmpty(t, f.auditLog.entries)
	last := f.auditLog.entries[len(f.auditLog.entries)-1]
	require.Equal(t, domain.ActionSessionTerminated, last.Action)
	require.NotNil(t, last.ActorID)
	require.Equal(t, int64(42), *last.ActorID)
}

func TestAdminLockAndUnlock(t *testing.T) {
	router, f := newTestRouter(t)
	token := adminToken(t, "admin")

	w := doJSON(t, router, http.MethodPost, "/admin/users/7/lock", token, gin.H{"reason": "fraud review", "permanent": true})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, f.settings.get(7).AccountLocked)

	w = doJSON(t, router, http.MethodGet, "/admin/users/7/lockout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var status lockout.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.True(t, status.IsLocked)
	require.False(t, status.CanUnlock)

	w = doJSON(t, router, http.MethodPost, "/admin/users/7/unlock", token, gin.H{"reason": "resolved"})
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, f.settings.get(7).AccountLocked)

	w = doJSON(t, router, http.MethodPost, "/admin/users/abc/lock", token, gin.H{"reason": "x"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveEventOverHTTP(t *testing.T) {
	router, f := newTestRouter(t)
	token := adminToken(t, "admin")

	f.events.events["evt-1"] = &domain.SecurityEvent{ID: "evt-1", Type: domain.EventBruteForce}

	w := doJSON(t, router, http.MethodPost, "/admin/security/events/evt-1/resolve", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, f.events.events["evt-1"].Resolved)

	w = doJSON(t, router, http.MethodPost, "/admin/security/events/missing/resolve", token, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthz(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

type fixtures struct {
	settings *memorySettingsRepo
	attempts *memoryAttemptRepo
	events   *memoryEventRepo
	auditLog *memoryAuditRepo
	sessions *memorySessionRepo
	users    *memoryUserDirectory
}

type memorySettingsRepo struct {
	rows map[int64]*domain.SecuritySettings
}

func newMemorySettingsRepo() *memorySettingsRepo {
	return &memorySettingsRepo{rows: map[int64]*domain.SecuritySettings{}}
}

func (m *memorySettingsRepo) get(userID int64) domain.SecuritySettings {
	if row, ok := m.rows[userID]; ok {
		return *row
	}
	return domain.SecuritySettings{}
}

func (m *memorySettingsRepo) Get(ctx context.Context, userID int64) (domain.SecuritySettings, error) {
	row, ok := m.rows[userID]
	if !ok {
		return domain.SecuritySettings{}, repository.ErrNotFound
	}
	return *row, nil
}

func (m *memorySettingsRepo) IncrementFailures(ctx context.Context, userID int64, at time.Time) (int, bool, error) {
	row, ok := m.rows[userID]
	if !ok {
		row = &domain.SecuritySettings{UserID: userID}
		m.rows[userID] = row
	}
	row.FailedLoginCount++
	row.LastFailedLogin = &at
	return row.FailedLoginCount, row.AccountLocked, nil
}

func (m *memorySettingsRepo) ResetFailures(ctx context.Context, userID int64) error {
	if row, ok := m.rows[userID]; ok {
		row.FailedLoginCount = 0
	}
	return nil
}

func (m *memorySettingsRepo) TryLock(ctx context.Context, userID int64, until *time.Time, reason string, minFailures int) (bool, error) {
	row, ok := m.rows[userID]
	if !ok || row.AccountLocked || row.FailedLoginCount < minFailures {
		return false, nil
	}
	row.AccountLocked = true
	row.LockedUntil = until
	row.LockedReason = &reason
	row.FailedLoginCount = 0
	return true, nil
}

func (m *memorySettingsRepo) Lock(ctx context.Context, userID int64, until *time.Time, reason string) error {
	row, ok := m.rows[userID]
	if !ok {
		row = &domain.SecuritySettings{UserID: userID}
		m.rows[userID] = row
	}
	row.AccountLocked = true
	row.LockedUntil = until
	row.LockedReason = &reason
	return nil
}

func (m *memorySettingsRepo) Unlock(ctx context.Context, userID int64) (bool, error) {
	row, ok := m.rows[userID]
	if !ok || !row.AccountLocked {
		return false, nil
	}
	row.AccountLocked = false
	row.LockedUntil = nil
	row.LockedReason = nil
	row.FailedLoginCount = 0
	return true, nil
}

func (m *memorySettingsRepo) CountLocked(ctx context.Context) (int, error) {
	count := 0
	for _, row := range m.rows {
		if row.AccountLocked {
			count++
		}
	}
	return count, nil
}

type memoryAttemptRepo struct {
	attempts []domain.LoginAttempt
}

func (m *memoryAttemptRepo) Insert(ctx context.Context, a domain.LoginAttempt) (domain.LoginAttempt, error) {
	a.ID = int64(len(m.attempts) + 1)
	a.CreatedAt = time.Now().UTC()
	m.attempts = append(m.attempts, a)
	return a, nil
}

func (m *memoryAttemptRepo) PreviousSuccessful(ctx context.Context, userID int64, beforeID int64) (domain.LoginAttempt, error) {
	for i := len(m.attempts) - 1; i >= 0; i-- {
		a := m.attempts[i]
		if a.ID >= beforeID || !a.Success || a.UserID == nil || *a.UserID != userID {
			continue
		}
		return a, nil
	}
	return domain.LoginAttempt{}, repository.ErrNotFound
}

func (m *memoryAttemptRepo) Recent(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	return m.attempts, nil
}

func (m *memoryAttemptRepo) CountFailedSince(ctx context.Context, since time.Time) (int, error) {
	count := 0
	for _, a := range m.attempts {
		if !a.Success && !a.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memoryAttemptRepo) TopFailedIPs(ctx context.Context, since time.Time, limit int) ([]domain.FailedIPCount, error) {
	return nil, nil
}

func (m *memoryAttemptRepo) DailyTrends(ctx context.Context, days int) ([]domain.LoginTrend, error) {
	return nil, nil
}

type memoryEventRepo struct {
	events map[string]*domain.SecurityEvent
}

func (m *memoryEventRepo) Insert(ctx context.Context, event domain.SecurityEvent) (domain.SecurityEvent, error) {
	copied := event
	m.events[event.ID] = &copied
	return event, nil
}

func (m *memoryEventRepo) Recent(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	var out []domain.SecurityEvent
	for _, e := range m.events {
		out = append(out, *e)
	}
	return out, nil
}

func (m *memoryEventRepo) Resolve(ctx context.Context, eventID string) (bool, error) {
	event, ok := m.events[eventID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if event.Resolved {
		return false, nil
	}
	event.Resolved = true
	return true, nil
}

func (m *memoryEventRepo) CountUnresolved(ctx context.Context) (int, error) {
	count := 0
	for _, e := range m.events {
		if !e.Resolved {
			count++
		}
	}
	return count, nil
}

type memoryAuditRepo struct {
	entries []domain.AuditEntry
}

func (m *memoryAuditRepo) Insert(ctx context.Context, entry domain.AuditEntry) error {
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memoryAuditRepo) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	return m.entries, nil
}

func (m *memoryAuditRepo) ByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.AuditEntry, error) {
	return nil, nil
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

type memoryUserDirectory struct {
	users map[string]int64
}

func (m *memoryUserDirectory) LookupByEmail(ctx context.Context, email string) (int64, error) {
	if id, ok := m.users[email]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("lookup %s: %w", email, repository.ErrNotFound)
}
