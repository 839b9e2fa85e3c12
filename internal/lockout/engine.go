// Package lockout owns per-account lock state: failure counting, the
// threshold transition into a temporary lock, lazy expiry, and the
// administrative lock/unlock paths.
package lockout

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
	"github.com/summithq/summithq-security/internal/metrics"
	"github.com/summithq/summithq-security/internal/repository"
)

const (
	tooManyFailuresReason = "Too many failed login attempts"
	expiryUnlockReason    = "Lockout period expired"

	resourceTypeUser = "user"
)

// Status is the caller-facing lock state for one account. CanUnlock reports
// whether the lock will release on its own (temporary locks only); permanent
// locks need an administrator.
type Status struct {
	IsLocked          bool       `json:"is_locked"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
	Reason            *string    `json:"reason,omitempty"`
	CanUnlock         bool       `json:"can_unlock"`
	AttemptsRemaining int        `json:"attempts_remaining"`
}

// Engine derives lock state from attempt history and administrative commands.
type Engine struct {
	settings  repository.SettingsRepository
	events    repository.EventRepository
	audit     audit.Sink
	threshold int
	duration  time.Duration
	logger    *zap.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewEngine(settings repository.SettingsRepository, events repository.EventRepository, sink audit.Sink, threshold int, duration time.Duration, logger *zap.Logger) *Engine {
	if threshold <= 0 {
		threshold = 5
	}
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	return &Engine{
		settings:  settings,
		events:    events,
		audit:     sink,
		threshold: threshold,
		duration:  duration,
		logger:    logger,
		tracer:    otel.Tracer("lockout"),
		now:       time.Now,
	}
}

// RegisterFailure counts one failed attempt and performs the threshold
// transition when crossed. The increment and the guarded lock update are each
// single atomic statements, so concurrent failures can neither lose counts
// nor double-lock.
func (e *Engine) RegisterFailure(ctx context.Context, userID int64) error {
	ctx, span := e.tracer.Start(ctx, "Engine.RegisterFailure")
	defer span.End()

	now := e.now().UTC()
	count, alreadyLocked, err := e.settings.IncrementFailures(ctx, userID, now)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("register failure: %w", err)
	}
	if alreadyLocked || count < e.threshold {
		return nil
	}

	until := now.Add(e.duration)
	won, err := e.settings.TryLock(ctx, userID, &until, tooManyFailuresReason, e.threshold)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("register failure: %w", err)
	}
	if !won {
		// Another concurrent failure performed the transition.
		return nil
	}

	metrics.LockoutsTotal.Inc()
	e.logger.Warn("account locked after repeated failures",
		zap.Int64("user_id", userID),
		zap.Int("failed_attempts", count),
		zap.Time("locked_until", until),
	)

	if _, err := e.events.Insert(ctx, domain.SecurityEvent{
		ID:          uuid.NewString(),
		Type:        domain.EventBruteForce,
		Severity:    domain.SeverityHigh,
		UserID:      &userID,
		Description: fmt.Sprintf("Account locked after %d failed login attempts", count),
		Metadata: map[string]any{
			"failed_attempts": count,
			"locked_until":    until.Format(time.RFC3339),
		},
	}); err != nil {
		// Bookkeeping only; the lock itself already took effect.
		e.logger.Error("record brute force event", zap.Int64("user_id", userID), zap.Error(err))
	}

	e.audit.Append(ctx, audit.Entry{
		Action:       domain.ActionAccountLocked,
		ResourceType: resourceTypeUser,
		ResourceID:   strconv.FormatInt(userID, 10),
		NewValue: map[string]any{
			"account_locked": true,
			"locked_until":   until.Format(time.RFC3339),
			"locked_reason":  tooManyFailuresReason,
		},
		Metadata: map[string]any{"failed_attempts": count},
	})
	return nil
}

// ResetFailures zeroes the counter after a successful, unblocked login. It
// does not clear an existing lock: a locked account should never have reached
// a successful credential check in the first place.
func (e *Engine) ResetFailures(ctx context.Context, userID int64) error {
	if err := e.settings.ResetFailures(ctx, userID); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// CheckStatus reports the account's lock state, expiring a stale temporary
// lock as a side effect. Expiry is evaluated lazily here rather than by a
// background janitor.
func (e *Engine) CheckStatus(ctx context.Context, userID int64) (Status, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.CheckStatus")
	defer span.End()

	settings, err := e.settings.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// No settings row means no recorded failures yet.
			return Status{AttemptsRemaining: e.threshold}, nil
		}
		span.RecordError(err)
		return Status{}, fmt.Errorf("check lockout status: %w", err)
	}

	now := e.now().UTC()
	if settings.AccountLocked && settings.LockedUntil != nil && !now.Before(*settings.LockedUntil) {
		changed, err := e.settings.Unlock(ctx, userID)
		if err != nil {
			span.RecordError(err)
			return Status{}, fmt.Errorf("expire lockout: %w", err)
		}
		if changed {
			e.audit.Append(ctx, audit.Entry{
				Action:       domain.ActionAccountUnlocked,
				ResourceType: resourceTypeUser,
				ResourceID:   strconv.FormatInt(userID, 10),
				OldValue: map[string]any{
					"account_locked": true,
					"locked_until":   settings.LockedUntil.Format(time.RFC3339),
				},
				NewValue: map[string]any{"account_locked": false},
				Metadata: map[string]any{"reason": expiryUnlockReason},
			})
		}
		return Status{AttemptsRemaining: e.threshold}, nil
	}

	status := Status{
		IsLocked:          settings.AccountLocked,
		LockedUntil:       settings.LockedUntil,
		Reason:            settings.LockedReason,
		CanUnlock:         settings.AccountLocked && settings.LockedUntil != nil,
		AttemptsRemaining: max(0, e.threshold-settings.FailedLoginCount),
	}
	if status.IsLocked {
		status.AttemptsRemaining = 0
	}
	return status, nil
}

// Lock is the administrative lock path. Locking an already-locked account
// updates its reason and expiry. Errors propagate: the administrator must
// know the action did not take effect.
func (e *Engine) Lock(ctx context.Context, userID int64, reason string, permanent bool) error {
	ctx, span := e.tracer.Start(ctx, "Engine.Lock")
	defer span.End()

	prior, err := e.settings.Get(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		span.RecordError(err)
		return fmt.Errorf("lock account: %w", err)
	}

	var until *time.Time
	if !permanent {
		t := e.now().UTC().Add(e.duration)
		until = &t
	}
	if err := e.settings.Lock(ctx, userID, until, reason); err != nil {
		span.RecordError(err)
		return err
	}

	if _, err := e.events.Insert(ctx, domain.SecurityEvent{
		ID:          uuid.NewString(),
		Type:        domain.EventAccountLocked,
		Severity:    domain.SeverityMedium,
		UserID:      &userID,
		Description: fmt.Sprintf("Account locked by administrator: %s", reason),
		Metadata:    map[string]any{"permanent": permanent},
	}); err != nil {
		e.logger.Error("record account locked event", zap.Int64("user_id", userID), zap.Error(err))
	}

	newValue := map[string]any{
		"account_locked": true,
		"locked_reason":  reason,
		"permanent":      permanent,
	}
	if until != nil {
		newValue["locked_until"] = until.Format(time.RFC3339)
	}
	e.audit.Append(ctx, audit.Entry{
		Action:       domain.ActionAccountLocked,
		ResourceType: resourceTypeUser,
		ResourceID:   strconv.FormatInt(userID, 10),
		OldValue:     lockStateValue(prior),
		NewValue:     newValue,
	})
	return nil
}

// Unlock releases any lock, permanent or temporary. Unlocking an unlocked
// account is a no-op success and writes no audit entry.
func (e *Engine) Unlock(ctx context.Context, userID int64, reason string) error {
	ctx, span := e.tracer.Start(ctx, "Engine.Unlock")
	defer span.End()

	prior, err := e.settings.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		span.RecordError(err)
		return fmt.Errorf("unlock account: %w", err)
	}

	changed, err := e.settings.Unlock(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !changed {
		return nil
	}

	metadata := map[string]any{}
	if reason != "" {
		metadata["reason"] = reason
	}
	e.audit.Append(ctx, audit.Entry{
		Action:       domain.ActionAccountUnlocked,
		ResourceType: resourceTypeUser,
		ResourceID:   strconv.FormatInt(userID, 10),
		OldValue:     lockStateValue(prior),
		NewValue:     map[string]any{"account_locked": false},
		Metadata:     metadata,
	})
	return nil
}

func lockStateValue(s domain.SecuritySettings) map[string]any {
	value := map[string]any{
		"account_locked":     s.AccountLocked,
		"failed_login_count": s.FailedLoginCount,
	}
	if s.LockedUntil != nil {
		value["locked_until"] = s.LockedUntil.Format(time.RFC3339)
	}
	if s.LockedReason != nil {
		value["locked_reason"] = *s.LockedReason
	}
	return value
}
