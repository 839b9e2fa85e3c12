// Package attempt records authentication attempts reported by the identity
// provider. The attempt row is always written first; lockout bookkeeping and
// suspicion checks are best-effort side effects that must never fail the
// write.
package attempt

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/lockout"
	"github.com/summithq/summithq-security/internal/metrics"
	"github.com/summithq/summithq-security/internal/repository"
	"github.com/summithq/summithq-security/internal/suspicion"
)

// Input describes one authentication try. UserID may be pre-resolved by the
// identity provider; otherwise the recorder looks it up by email.
type Input struct {
	Email         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason *string
	UserID        *int64
}

// Recorder persists attempts and drives the downstream lockout and suspicion
// reactions.
type Recorder struct {
	attempts repository.AttemptRepository
	users    repository.UserDirectory
	events   repository.EventRepository
	engine   *lockout.Engine
	detector *suspicion.Detector
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewRecorder(attempts repository.AttemptRepository, users repository.UserDirectory, events repository.EventRepository, engine *lockout.Engine, detector *suspicion.Detector, logger *zap.Logger) *Recorder {
	return &Recorder{
		attempts: attempts,
		users:    users,
		events:   events,
		engine:   engine,
		detector: detector,
		logger:   logger,
		tracer:   otel.Tracer("attempt"),
	}
}

// Record stores the attempt and reacts to its outcome. Only the attempt
// insert itself can fail the call; everything after it is logged and
// swallowed so the login flow never hard-fails on security bookkeeping.
func (r *Recorder) Record(ctx context.Context, in Input) error {
	ctx, span := r.tracer.Start(ctx, "Recorder.Record")
	defer span.End()

	userID := in.UserID
	if userID == nil {
		if id, err := r.users.LookupByEmail(ctx, in.Email); err == nil {
			userID = &id
		} else if !errors.Is(err, repository.ErrNotFound) {
			// Unresolved attempts are still stored with a null user.
			r.logger.Warn("user lookup failed", zap.String("email", in.Email), zap.Error(err))
		}
	}

	stored, err := r.attempts.Insert(ctx, domain.LoginAttempt{
		UserID:        userID,
		Email:         in.Email,
		IPAddress:     in.IPAddress,
		UserAgent:     in.UserAgent,
		Success:       in.Success,
		FailureReason: in.FailureReason,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("record attempt: %w", err)
	}

	outcome := "failure"
	if in.Success {
		outcome = "success"
	}
	metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()

	if userID == nil {
		return nil
	}

	if !in.Success {
		if err := r.engine.RegisterFailure(ctx, *userID); err != nil {
			r.logger.Error("lockout bookkeeping failed", zap.Int64("user_id", *userID), zap.Error(err))
		}
		return nil
	}

	if err := r.engine.ResetFailures(ctx, *userID); err != nil {
		r.logger.Error("failure reset failed", zap.Int64("user_id", *userID), zap.Error(err))
	}
	r.flagSuspiciousLogin(ctx, *userID, in.IPAddress, stored.ID)
	return nil
}

func (r *Recorder) flagSuspiciousLogin(ctx context.Context, userID int64, ip string, attemptID int64) {
	check, err := r.detector.DetectLogin(ctx, userID, ip, attemptID)
	if err != nil {
		r.logger.Warn("suspicious login check failed", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	if !check.Suspicious {
		return
	}

	metrics.SuspiciousLoginsTotal.Inc()
	r.logger.Info("suspicious login flagged",
		zap.Int64("user_id", userID),
		zap.String("ip", ip),
		zap.String("reason", check.Reason),
	)

	if _, err := r.events.Insert(ctx, domain.SecurityEvent{
		ID:          uuid.NewString(),
		Type:        domain.EventSuspiciousLogin,
		Severity:    domain.SeverityMedium,
		UserID:      &userID,
		Description: check.Reason,
		Metadata:    map[string]any{"ip_address": ip},
	}); err != nil {
		r.logger.Error("record suspicious login event", zap.Int64("user_id", userID), zap.Error(err))
	}
}
