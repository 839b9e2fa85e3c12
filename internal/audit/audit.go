// Package audit writes the append-only administrative audit trail. Audit
// logging is observability, not a transactional guarantee: a failed write is
// logged and swallowed, never propagated to the operation it describes.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/repository"
	"github.com/summithq/summithq-security/internal/requestmeta"
)

// Entry is the caller-facing shape of an audit record. Actor, IP, and user
// agent are filled from request context when not supplied.
type Entry struct {
	ActorID      *int64
	Action       domain.AuditAction
	ResourceType string
	ResourceID   string
	OldValue     map[string]any
	NewValue     map[string]any
	Metadata     map[string]any
}

// Sink accepts audit entries. Append never reports failure to the caller.
type Sink interface {
	Append(ctx context.Context, entry Entry)
}

// IPResolver supplies a fallback client IP when the request context carries
// none. The external lookup is best-effort and time-boxed.
type IPResolver func(ctx context.Context) (string, error)

const ipResolveTimeout = 2 * time.Second

// Service is the production Sink backed by the audit repository.
type Service struct {
	repo      repository.AuditRepository
	resolveIP IPResolver
	logger    *zap.Logger
}

var _ Sink = (*Service)(nil)

func NewService(repo repository.AuditRepository, resolveIP IPResolver, logger *zap.Logger) *Service {
	return &Service{repo: repo, resolveIP: resolveIP, logger: logger}
}

// Append records one state-changing operation. Entries are immutable once
// written.
func (s *Service) Append(ctx context.Context, entry Entry) {
	record := domain.AuditEntry{
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		ResourceType: entry.ResourceType,
		ResourceID:   entry.ResourceID,
		OldValue:     entry.OldValue,
		NewValue:     entry.NewValue,
		Metadata:     entry.Metadata,
		UserAgent:    requestmeta.UserAgent(ctx),
		CreatedAt:    time.Now().UTC(),
	}

	if record.ActorID == nil {
		if actor, ok := requestmeta.Actor(ctx); ok {
			record.ActorID = &actor
		}
	}
	record.IPAddress = s.clientIP(ctx)

	if err := s.repo.Insert(ctx, record); err != nil {
		s.logger.Error("audit write failed",
			zap.String("action", string(record.Action)),
			zap.String("resource_type", record.ResourceType),
			zap.String("resource_id", record.ResourceID),
			zap.Error(err),
		)
	}
}

// clientIP prefers the IP captured by middleware; otherwise it asks the
// resolver with a hard deadline. A miss leaves the field null rather than
// delaying the write.
func (s *Service) clientIP(ctx context.Context) *string {
	if ip, ok := requestmeta.ClientIP(ctx); ok {
		return &ip
	}
	if s.resolveIP == nil {
		return nil
	}

	resolveCtx, cancel := context.WithTimeout(ctx, ipResolveTimeout)
	defer cancel()

	ip, err := s.resolveIP(resolveCtx)
	if err != nil || ip == "" {
		if err != nil {
			s.logger.Debug("audit ip resolution failed", zap.Error(err))
		}
		return nil
	}
	return &ip
}
