package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/summithq/summithq-security/internal/domain"
)

// Compile-time interface assertions.
var (
	_ SettingsRepository = (*PostgresSettingsRepo)(nil)
	_ AttemptRepository  = (*PostgresAttemptRepo)(nil)
	_ EventRepository    = (*PostgresEventRepo)(nil)
	_ AuditRepository    = (*PostgresAuditRepo)(nil)
	_ SessionRepository  = (*PostgresSessionRepo)(nil)
	_ UserDirectory      = (*PostgresUserDirectory)(nil)
)

// PostgresSettingsRepo implements SettingsRepository.
type PostgresSettingsRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSettingsRepo(pool *pgxpool.Pool) *PostgresSettingsRepo {
	return &PostgresSettingsRepo{db: pool}
}

const getSettingsSQL = `SELECT user_id, failed_login_count, account_locked, locked_until, locked_reason, two_factor_enabled, last_failed_login, created_at, updated_at
FROM user_security_settings WHERE user_id = $1`

func (r *PostgresSettingsRepo) Get(ctx context.Context, userID int64) (domain.SecuritySettings, error) {
	var s domain.SecuritySettings
	err := r.db.QueryRow(ctx, getSettingsSQL, userID).Scan(
		&s.UserID,
		&s.FailedLoginCount,
		&s.AccountLocked,
		&s.LockedUntil,
		&s.LockedReason,
		&s.TwoFactorEnabled,
		&s.LastFailedLogin,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SecuritySettings{}, ErrNotFound
		}
		return domain.SecuritySettings{}, fmt.Errorf("get security settings: %w", err)
	}
	return s, nil
}

// The upsert is a single statement so two concurrent failures can never read
// the same count. The returned count and lock flag reflect this increment.
const incrementFailuresSQL = `INSERT INTO user_security_settings (user_id, failed_login_count, account_locked, last_failed_login, created_at, updated_at)
VALUES ($1, 1, false, $2, $2, $2)
ON CONFLICT (user_id) DO UPDATE SET
	failed_login_count = user_security_settings.failed_login_count + 1,
	last_failed_login = EXCLUDED.last_failed_login,
	updated_at = EXCLUDED.updated_at
RETURNING failed_login_count, account_locked`

func (r *PostgresSettingsRepo) IncrementFailures(ctx context.Context, userID int64, at time.Time) (int, bool, error) {
	var (
		count  int
		locked bool
	)
	if err := r.db.QueryRow(ctx, incrementFailuresSQL, userID, at.UTC()).Scan(&count, &locked); err != nil {
		return 0, false, fmt.Errorf("increment failures: %w", err)
	}
	return count, locked, nil
}

const resetFailuresSQL = `UPDATE user_security_settings
SET failed_login_count = 0, last_failed_login = NULL, updated_at = now()
WHERE user_id = $1`

func (r *PostgresSettingsRepo) ResetFailures(ctx context.Context, userID int64) error {
	if _, err := r.db.Exec(ctx, resetFailuresSQL, userID); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// The account_locked = false guard makes the threshold transition fire
// exactly once under concurrent failures: only one caller's update matches.
const tryLockSQL = `UPDATE user_security_settings
SET account_locked = true, locked_until = $2, locked_reason = $3, failed_login_count = 0, updated_at = now()
WHERE user_id = $1 AND account_locked = false AND failed_login_count >= $4`

func (r *PostgresSettingsRepo) TryLock(ctx context.Context, userID int64, until *time.Time, reason string, minFailures int) (bool, error) {
	tag, err := r.db.Exec(ctx, tryLockSQL, userID, until, reason, minFailures)
	if err != nil {
		return false, fmt.Errorf("try lock: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const lockSQL = `INSERT INTO user_security_settings (user_id, failed_login_count, account_locked, locked_until, locked_reason, created_at, updated_at)
VALUES ($1, 0, true, $2, $3, now(), now())
ON CONFLICT (user_id) DO UPDATE SET
	account_locked = true,
	locked_until = EXCLUDED.locked_until,
	locked_reason = EXCLUDED.locked_reason,
	updated_at = now()`

func (r *PostgresSettingsRepo) Lock(ctx context.Context, userID int64, until *time.Time, reason string) error {
	if _, err := r.db.Exec(ctx, lockSQL, userID, until, reason); err != nil {
		return fmt.Errorf("lock account: %w", err)
	}
	return nil
}

const unlockSQL = `UPDATE user_security_settings
SET account_locked = false, locked_until = NULL, locked_reason = NULL, failed_login_count = 0, last_failed_login = NULL, updated_at = now()
WHERE user_id = $1 AND account_locked = true`

func (r *PostgresSettingsRepo) Unlock(ctx context.Context, userID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, unlockSQL, userID)
	if err != nil {
		return false, fmt.Errorf("unlock account: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSettingsRepo) CountLocked(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM user_security_settings WHERE account_locked = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count locked accounts: %w", err)
	}
	return count, nil
}

// PostgresAttemptRepo implements AttemptRepository.
type PostgresAttemptRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAttemptRepo(pool *pgxpool.Pool) *PostgresAttemptRepo {
	return &PostgresAttemptRepo{db: pool}
}

const insertAttemptSQL = `INSERT INTO login_attempts (user_id, email, ip_address, user_agent, success, failure_reason, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, created_at`

func (r *PostgresAttemptRepo) Insert(ctx context.Context, attempt domain.LoginAttempt) (domain.LoginAttempt, error) {
	at := attempt.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, insertAttemptSQL,
		attempt.UserID,
		attempt.Email,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.Success,
		attempt.FailureReason,
		at,
	).Scan(&attempt.ID, &attempt.CreatedAt)
	if err != nil {
		return domain.LoginAttempt{}, fmt.Errorf("insert login attempt: %w", err)
	}
	return attempt, nil
}

const previousSuccessfulSQL = `SELECT id, user_id, email, ip_address, user_agent, success, failure_reason, created_at
FROM login_attempts
WHERE user_id = $1 AND success = true AND id < $2
ORDER BY id DESC
LIMIT 1`

func (r *PostgresAttemptRepo) PreviousSuccessful(ctx context.Context, userID int64, beforeID int64) (domain.LoginAttempt, error) {
	row := r.db.QueryRow(ctx, previousSuccessfulSQL, userID, beforeID)
	attempt, err := scanAttempt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LoginAttempt{}, ErrNotFound
		}
		return domain.LoginAttempt{}, fmt.Errorf("previous successful attempt: %w", err)
	}
	return attempt, nil
}

const recentAttemptsSQL = `SELECT id, user_id, email, ip_address, user_agent, success, failure_reason, created_at
FROM login_attempts
ORDER BY id DESC
LIMIT $1`

func (r *PostgresAttemptRepo) Recent(ctx context.Context, limit int) ([]domain.LoginAttempt, error) {
	rows, err := r.db.Query(ctx, recentAttemptsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.LoginAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("recent attempts: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	return attempts, nil
}

func (r *PostgresAttemptRepo) CountFailedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM login_attempts WHERE success = false AND created_at >= $1`,
		since.UTC(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed attempts: %w", err)
	}
	return count, nil
}

const topFailedIPsSQL = `SELECT ip_address, count(*) AS attempts
FROM login_attempts
WHERE success = false AND created_at >= $1 AND ip_address <> ''
GROUP BY ip_address
ORDER BY attempts DESC
LIMIT $2`

func (r *PostgresAttemptRepo) TopFailedIPs(ctx context.Context, since time.Time, limit int) ([]domain.FailedIPCount, error) {
	rows, err := r.db.Query(ctx, topFailedIPsSQL, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("top failed ips: %w", err)
	}
	defer rows.Close()

	var counts []domain.FailedIPCount
	for rows.Next() {
		var c domain.FailedIPCount
		if err := rows.Scan(&c.IPAddress, &c.Count); err != nil {
			return nil, fmt.Errorf("top failed ips: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("top failed ips: %w", err)
	}
	return counts, nil
}

const dailyTrendsSQL = `SELECT date_trunc('day', created_at) AS day,
	count(*) FILTER (WHERE success) AS succeeded,
	count(*) FILTER (WHERE NOT success) AS failed
FROM login_attempts
WHERE created_at >= $1
GROUP BY day
ORDER BY day`

func (r *PostgresAttemptRepo) DailyTrends(ctx context.Context, days int) ([]domain.LoginTrend, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)
	rows, err := r.db.Query(ctx, dailyTrendsSQL, since)
	if err != nil {
		return nil, fmt.Errorf("login trends: %w", err)
	}
	defer rows.Close()

	var trends []domain.LoginTrend
	for rows.Next() {
		var t domain.LoginTrend
		if err := rows.Scan(&t.Day, &t.Succeeded, &t.Failed); err != nil {
			return nil, fmt.Errorf("login trends: %w", err)
		}
		trends = append(trends, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("login trends: %w", err)
	}
	return trends, nil
}

func scanAttempt(row pgx.Row) (domain.LoginAttempt, error) {
	var a domain.LoginAttempt
	err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.Email,
		&a.IPAddress,
		&a.UserAgent,
		&a.Success,
		&a.FailureReason,
		&a.CreatedAt,
	)
	return a, err
}

// PostgresEventRepo implements EventRepository.
type PostgresEventRepo struct {
	db *pgxpool.Pool
}

func NewPostgresEventRepo(pool *pgxpool.Pool) *PostgresEventRepo {
	return &PostgresEventRepo{db: pool}
}

const insertEventSQL = `INSERT INTO security_events (id, event_type, severity, user_id, description, metadata, resolved, created_at)
VALUES ($1, $2, $3, $4, $5, $6, false, $7)
RETURNING created_at`

func (r *PostgresEventRepo) Insert(ctx context.Context, event domain.SecurityEvent) (domain.SecurityEvent, error) {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return domain.SecurityEvent{}, fmt.Errorf("marshal event metadata: %w", err)
	}
	at := event.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	err = r.db.QueryRow(ctx, insertEventSQL,
		event.ID,
		event.Type,
		event.Severity,
		event.UserID,
		event.Description,
		metadata,
		at,
	).Scan(&event.CreatedAt)
	if err != nil {
		return domain.SecurityEvent{}, fmt.Errorf("insert security event: %w", err)
	}
	return event, nil
}

const recentEventsSQL = `SELECT id, event_type, severity, user_id, description, metadata, resolved, created_at
FROM security_events
ORDER BY created_at DESC
LIMIT $1`

func (r *PostgresEventRepo) Recent(ctx context.Context, limit int) ([]domain.SecurityEvent, error) {
	rows, err := r.db.Query(ctx, recentEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var (
			e        domain.SecurityEvent
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Severity, &e.UserID, &e.Description, &metadata, &e.Resolved, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("recent events: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	return events, nil
}

func (r *PostgresEventRepo) Resolve(ctx context.Context, eventID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE security_events SET resolved = true WHERE id = $1 AND resolved = false`,
		eventID,
	)
	if err != nil {
		return false, fmt.Errorf("resolve event: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM security_events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
		return false, fmt.Errorf("resolve event: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (r *PostgresEventRepo) CountUnresolved(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT count(*) FROM security_events WHERE resolved = false`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unresolved events: %w", err)
	}
	return count, nil
}

// PostgresAuditRepo implements AuditRepository.
type PostgresAuditRepo struct {
	db *pgxpool.Pool
}

func NewPostgresAuditRepo(pool *pgxpool.Pool) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: pool}
}

const insertAuditSQL = `INSERT INTO audit_log (actor_id, action, resource_type, resource_id, old_value, new_value, metadata, ip_address, user_agent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (r *PostgresAuditRepo) Insert(ctx context.Context, entry domain.AuditEntry) error {
	oldValue, err := json.Marshal(entry.OldValue)
	if err != nil {
		return fmt.Errorf("marshal audit old value: %w", err)
	}
	newValue, err := json.Marshal(entry.NewValue)
	if err != nil {
		return fmt.Errorf("marshal audit new value: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	at := entry.CreatedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = r.db.Exec(ctx, insertAuditSQL,
		entry.ActorID,
		entry.Action,
		entry.ResourceType,
		entry.ResourceID,
		oldValue,
		newValue,
		metadata,
		entry.IPAddress,
		entry.UserAgent,
		at,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

const recentAuditSQL = `SELECT id, actor_id, action, resource_type, resource_id, old_value, new_value, metadata, ip_address, user_agent, created_at
FROM audit_log
ORDER BY id DESC
LIMIT $1`

func (r *PostgresAuditRepo) Recent(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, recentAuditSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("recent audit entries: %w", err)
	}
	defer rows.Close()
	return collectAuditRows(rows)
}

const auditByResourceSQL = `SELECT id, actor_id, action, resource_type, resource_id, old_value, new_value, metadata, ip_address, user_agent, created_at
FROM audit_log
WHERE resource_type = $1 AND resource_id = $2
ORDER BY id DESC
LIMIT $3`

func (r *PostgresAuditRepo) ByResource(ctx context.Context, resourceType, resourceID string, limit int) ([]domain.AuditEntry, error) {
	rows, err := r.db.Query(ctx, auditByResourceSQL, resourceType, resourceID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit entries by resource: %w", err)
	}
	defer rows.Close()
	return collectAuditRows(rows)
}

func collectAuditRows(rows pgx.Rows) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	for rows.Next() {
		var (
			e        domain.AuditEntry
			oldValue []byte
			newValue []byte
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.ResourceType, &e.ResourceID, &oldValue, &newValue, &metadata, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := unmarshalInto(oldValue, &e.OldValue); err != nil {
			return nil, err
		}
		if err := unmarshalInto(newValue, &e.NewValue); err != nil {
			return nil, err
		}
		if err := unmarshalInto(metadata, &e.Metadata); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collect audit entries: %w", err)
	}
	return entries, nil
}

func unmarshalInto(raw []byte, dest *map[string]any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal audit payload: %w", err)
	}
	return nil
}

// PostgresSessionRepo implements SessionRepository.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(pool *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: pool}
}

const insertSessionSQL = `INSERT INTO sessions (id, user_id, device_info, location, ip_address, created_at, last_activity, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING created_at, last_activity`

func (r *PostgresSessionRepo) Insert(ctx context.Context, session domain.Session) (domain.Session, error) {
	err := r.db.QueryRow(ctx, insertSessionSQL,
		session.ID,
		session.UserID,
		session.DeviceInfo,
		session.Location,
		session.IPAddress,
		session.CreatedAt,
		session.LastActivity,
		session.ExpiresAt,
	).Scan(&session.CreatedAt, &session.LastActivity)
	if err != nil {
		return domain.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

const getSessionSQL = `SELECT id, user_id, device_info, location, ip_address, created_at, last_activity, expires_at, terminated_at, terminated_reason
FROM sessions WHERE id = $1`

func (r *PostgresSessionRepo) Get(ctx context.Context, sessionID string) (domain.Session, error) {
	row := r.db.QueryRow(ctx, getSessionSQL, sessionID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *PostgresSessionRepo) Touch(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_activity = $2 WHERE id = $1 AND terminated_at IS NULL`,
		sessionID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const listActiveSessionsSQL = `SELECT id, user_id, device_info, location, ip_address, created_at, last_activity, expires_at, terminated_at, terminated_reason
FROM sessions
WHERE terminated_at IS NULL AND expires_at > $1
ORDER BY last_activity DESC`

func (r *PostgresSessionRepo) ListActive(ctx context.Context, now time.Time) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, listActiveSessionsSQL, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	defer rows.Close()
	return collectSessionRows(rows)
}

const listActiveByUserSQL = `SELECT id, user_id, device_info, location, ip_address, created_at, last_activity, expires_at, terminated_at, terminated_reason
FROM sessions
WHERE user_id = $1 AND terminated_at IS NULL AND expires_at > $2
ORDER BY last_activity DESC`

func (r *PostgresSessionRepo) ListActiveByUser(ctx context.Context, userID int64, now time.Time) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, listActiveByUserSQL, userID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list user sessions: %w", err)
	}
	defer rows.Close()
	return collectSessionRows(rows)
}

func (r *PostgresSessionRepo) Terminate(ctx context.Context, sessionID string, at time.Time, reason string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET terminated_at = $2, terminated_reason = $3 WHERE id = $1 AND terminated_at IS NULL`,
		sessionID, at.UTC(), reason,
	)
	if err != nil {
		return false, fmt.Errorf("terminate session: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return false, fmt.Errorf("terminate session: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

const terminateAllSQL = `UPDATE sessions
SET terminated_at = $2, terminated_reason = $3
WHERE user_id = $1 AND terminated_at IS NULL AND expires_at > $2`

func (r *PostgresSessionRepo) TerminateAllForUser(ctx context.Context, userID int64, at time.Time, reason string) (int, error) {
	tag, err := r.db.Exec(ctx, terminateAllSQL, userID, at.UTC(), reason)
	if err != nil {
		return 0, fmt.Errorf("terminate user sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.DeviceInfo,
		&s.Location,
		&s.IPAddress,
		&s.CreatedAt,
		&s.LastActivity,
		&s.ExpiresAt,
		&s.TerminatedAt,
		&s.TerminatedReason,
	)
	return s, err
}

func collectSessionRows(rows pgx.Rows) ([]domain.Session, error) {
	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collect sessions: %w", err)
	}
	return sessions, nil
}

// PostgresUserDirectory resolves user IDs from the users table owned by the
// identity provider. Read-only from this service.
type PostgresUserDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresUserDirectory(pool *pgxpool.Pool) *PostgresUserDirectory {
	return &PostgresUserDirectory{db: pool}
}

func (r *PostgresUserDirectory) LookupByEmail(ctx context.Context, email string) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `SELECT id FROM users WHERE lower(email) = lower($1)`, email).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("lookup user by email: %w", err)
	}
	return id, nil
}
