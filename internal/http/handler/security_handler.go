package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/summithq/summithq-security/internal/attempt"
	"github.com/summithq/summithq-security/internal/domain"
	"github.com/summithq/summithq-security/internal/lockout"
	"github.com/summithq/summithq-security/internal/report"
	"github.com/summithq/summithq-security/internal/session"
	"github.com/summithq/summithq-security/internal/suspicion"
)

type sessionResponse struct {
	ID               string     `json:"id"`
	UserID           int64      `json:"user_id"`
	DeviceInfo       string     `json:"device_info,omitempty"`
	Location         *string    `json:"location,omitempty"`
	IPAddress        string     `json:"ip_address,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastActivity     time.Time  `json:"last_activity"`
	ExpiresAt        time.Time  `json:"expires_at"`
	TerminatedAt     *time.Time `json:"terminated_at,omitempty"`
	TerminatedReason *string    `json:"terminated_reason,omitempty"`
}

type eventResponse struct {
	ID          string         `json:"id"`
	Type        string         `json:"event_type"`
	Severity    string         `json:"severity"`
	UserID      *int64         `json:"user_id,omitempty"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Resolved    bool           `json:"resolved"`
	CreatedAt   time.Time      `json:"created_at"`
}

type auditEntryResponse struct {
	ID           int64          `json:"id"`
	ActorID      *int64         `json:"actor_id,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	OldValue     map[string]any `json:"old_value,omitempty"`
	NewValue     map[string]any `json:"new_value,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	IPAddress    *string        `json:"ip_address,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

type failedIPResponse struct {
	IPAddress string `json:"ip_address"`
	Count     int    `json:"count"`
}

type attemptResponse struct {
	ID            int64     `json:"id"`
	UserID        *int64    `json:"user_id,omitempty"`
	Email         string    `json:"email"`
	IPAddress     string    `json:"ip_address,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	Success       bool      `json:"success"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type trendResponse struct {
	Day       string `json:"day"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
}

func toSessionResponse(s domain.Session) sessionResponse {
	return sessionResponse{
		ID:               s.ID,
		UserID:           s.UserID,
		DeviceInfo:       s.DeviceInfo,
		Location:         s.Location,
		IPAddress:        s.IPAddress,
		CreatedAt:        s.CreatedAt,
		LastActivity:     s.LastActivity,
		ExpiresAt:        s.ExpiresAt,
		TerminatedAt:     s.TerminatedAt,
		TerminatedReason: s.TerminatedReason,
	}
}

func toSessionResponses(sessions []domain.Session) []sessionResponse {
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionResponse(s))
	}
	return out
}

func toEventResponses(events []domain.SecurityEvent) []eventResponse {
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{
			ID:          e.ID,
			Type:        string(e.Type),
			Severity:    string(e.Severity),
			UserID:      e.UserID,
			Description: e.Description,
			Metadata:    e.Metadata,
			Resolved:    e.Resolved,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

func toAuditResponses(entries []domain.AuditEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:           e.ID,
			ActorID:      e.ActorID,
			Action:       string(e.Action),
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			OldValue:     e.OldValue,
			NewValue:     e.NewValue,
			Metadata:     e.Metadata,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

// SecurityHandler exposes the security core over HTTP: auth hooks for the
// identity provider and the admin back-office API.
type SecurityHandler struct {
	Recorder   *attempt.Recorder
	Engine     *lockout.Engine
	Registry   *session.Registry
	Detector   *suspicion.Detector
	Aggregator *report.Aggregator
}

// NewSecurityHandler creates the handler set.
func NewSecurityHandler(recorder *attempt.Recorder, engine *lockout.Engine, registry *session.Registry, detector *suspicion.Detector, aggregator *report.Aggregator) *SecurityHandler {
	return &SecurityHandler{
		Recorder:   recorder,
		Engine:     engine,
		Registry:   registry,
		Detector:   detector,
		Aggregator: aggregator,
	}
}

// RecordAttempt ingests one authentication attempt from the identity
// provider.
func (h *SecurityHandler) RecordAttempt(c *gin.Context) {
	var req struct {
		Email         string  `json:"email" binding:"required"`
		IPAddress     string  `json:"ip_address"`
		UserAgent     string  `json:"user_agent"`
		Success       bool    `json:"success"`
		FailureReason *string `json:"failure_reason"`
		UserID        *int64  `json:"user_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid attempt payload."})
		return
	}

	err := h.Recorder.Record(c.Request.Context(), attempt.Input{
		Email:         req.Email,
		IPAddress:     req.IPAddress,
		UserAgent:     req.UserAgent,
		Success:       req.Success,
		FailureReason: req.FailureReason,
		UserID:        req.UserID,
	})
	if err != nil {
		h.serverError(c, "record attempt failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateSession opens a session after a successful authentication.
func (h *SecurityHandler) CreateSession(c *gin.Context) {
	var req struct {
		UserID     int64  `json:"user_id" binding:"required"`
		DeviceInfo string `json:"device_info"`
		IPAddress  string `json:"ip_address"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid session payload."})
		return
	}

	created, err := h.Registry.Create(c.Request.Context(), session.CreateInput{
		UserID:     req.UserID,
		DeviceInfo: req.DeviceInfo,
		IPAddress:  req.IPAddress,
	})
	if err != nil {
		h.serverError(c, "create session failed", err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(created))
}

// TouchSession refreshes last activity on an authenticated request.
func (h *SecurityHandler) TouchSession(c *gin.Context) {
	if err := h.Registry.Touch(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Unknown session."})
			return
		}
		h.serverError(c, "touch session failed", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// LockoutStatus is consulted by the identity provider before accepting a
// credential as valid. The check performs lazy lock expiry as a side effect.
func (h *SecurityHandler) LockoutStatus(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	status, err := h.Engine.CheckStatus(c.Request.Context(), userID)
	if err != nil {
		h.serverError(c, "lockout status failed", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Metrics returns the dashboard overview.
func (h *SecurityHandler) Metrics(c *gin.Context) {
	overview, err := h.Aggregator.Overview(c.Request.Context())
	if err != nil {
		h.serverError(c, "security metrics failed", err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

// RecentActivity returns the newest audit entries, optionally narrowed to one
// resource via ?resource_type=&resource_id=.
func (h *SecurityHandler) RecentActivity(c *gin.Context) {
	var (
		entries []domain.AuditEntry
		err     error
	)
	resourceType := c.Query("resource_type")
	resourceID := c.Query("resource_id")
	if resourceType != "" && resourceID != "" {
		entries, err = h.Aggregator.ResourceActivity(c.Request.Context(), resourceType, resourceID, h.limit(c))
	} else {
		entries, err = h.Aggregator.RecentActivity(c.Request.Context(), h.limit(c))
	}
	if err != nil {
		h.serverError(c, "recent activity failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activity": toAuditResponses(entries)})
}

// RecentAttempts returns the newest login attempts.
func (h *SecurityHandler) RecentAttempts(c *gin.Context) {
	attempts, err := h.Aggregator.RecentAttempts(c.Request.Context(), h.limit(c))
	if err != nil {
		h.serverError(c, "recent attempts failed", err)
		return
	}
	out := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptResponse{
			ID:            a.ID,
			UserID:        a.UserID,
			Email:         a.Email,
			IPAddress:     a.IPAddress,
			UserAgent:     a.UserAgent,
			Success:       a.Success,
			FailureReason: a.FailureReason,
			CreatedAt:     a.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"attempts": out})
}

// GetSession returns one session, terminated or live.
func (h *SecurityHandler) GetSession(c *gin.Context) {
	s, err := h.Registry.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Unknown session."})
			return
		}
		h.serverError(c, "get session failed", err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(s))
}

// SecurityEvents returns the newest security events.
func (h *SecurityHandler) SecurityEvents(c *gin.Context) {
	events, err := h.Aggregator.Events(c.Request.Context(), h.limit(c))
	if err != nil {
		h.serverError(c, "security events failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": toEventResponses(events)})
}

// ResolveEvent acknowledges a security event.
func (h *SecurityHandler) ResolveEvent(c *gin.Context) {
	err := h.Aggregator.ResolveEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, report.ErrEventNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Unknown security event."})
			return
		}
		h.serverError(c, "resolve event failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "resolved"})
}

// TopFailedIPs ranks origins of failed logins.
func (h *SecurityHandler) TopFailedIPs(c *gin.Context) {
	counts, err := h.Aggregator.TopFailedIPs(c.Request.Context(), h.limit(c))
	if err != nil {
		h.serverError(c, "top failed ips failed", err)
		return
	}
	out := make([]failedIPResponse, 0, len(counts))
	for _, ip := range counts {
		out = append(out, failedIPResponse{IPAddress: ip.IPAddress, Count: ip.Count})
	}
	c.JSON(http.StatusOK, gin.H{"ips": out})
}

// LoginTrends returns per-day attempt outcomes.
func (h *SecurityHandler) LoginTrends(c *gin.Context) {
	days, _ := strconv.Atoi(c.DefaultQuery("days", "7"))
	trends, err := h.Aggregator.LoginTrends(c.Request.Context(), days)
	if err != nil {
		h.serverError(c, "login trends failed", err)
		return
	}
	out := make([]trendResponse, 0, len(trends))
	for _, tr := range trends {
		out = append(out, trendResponse{Day: tr.Day.Format("2006-01-02"), Succeeded: tr.Succeeded, Failed: tr.Failed})
	}
	c.JSON(http.StatusOK, gin.H{"trends": out})
}

// ActiveSessions lists every live session.
func (h *SecurityHandler) ActiveSessions(c *gin.Context) {
	sessions, err := h.Registry.ListActive(c.Request.Context())
	if err != nil {
		h.serverError(c, "list sessions failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": toSessionResponses(sessions)})
}

// SessionStats returns the active-session aggregation.
func (h *SecurityHandler) SessionStats(c *gin.Context) {
	stats, err := h.Registry.Stats(c.Request.Context())
	if err != nil {
		h.serverError(c, "session stats failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SuspiciousSessions lists active sessions flagged by the detector.
func (h *SecurityHandler) SuspiciousSessions(c *gin.Context) {
	sessions, err := h.Detector.DetectSessions(c.Request.Context())
	if err != nil {
		h.serverError(c, "suspicious sessions failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": toSessionResponses(sessions)})
}

// TerminateSession ends one session.
func (h *SecurityHandler) TerminateSession(c *gin.Context) {
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Termination reason is required."})
		return
	}

	if err := h.Registry.Terminate(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Unknown session."})
			return
		}
		h.serverError(c, "terminate session failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "terminated"})
}

// UserSessions lists one user's live sessions.
func (h *SecurityHandler) UserSessions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	sessions, err := h.Registry.ListActiveForUser(c.Request.Context(), userID)
	if err != nil {
		h.serverError(c, "list user sessions failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": toSessionResponses(sessions)})
}

// TerminateUserSessions ends every active session of one user.
func (h *SecurityHandler) TerminateUserSessions(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Termination reason is required."})
		return
	}

	count, err := h.Registry.TerminateAll(c.Request.Context(), userID, req.Reason)
	if err != nil {
		h.serverError(c, "terminate user sessions failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"terminated": count})
}

// LockUser is the administrative lock command.
func (h *SecurityHandler) LockUser(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req struct {
		Reason    string `json:"reason" binding:"required"`
		Permanent bool   `json:"permanent"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Lock reason is required."})
		return
	}

	if err := h.Engine.Lock(c.Request.Context(), userID, req.Reason, req.Permanent); err != nil {
		h.serverError(c, "lock account failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "locked"})
}

// UnlockUser is the administrative unlock command.
func (h *SecurityHandler) UnlockUser(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = c.ShouldBindJSON(&req)

	if err := h.Engine.Unlock(c.Request.Context(), userID, req.Reason); err != nil {
		h.serverError(c, "unlock account failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unlocked"})
}

func (h *SecurityHandler) userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "Invalid user id."})
		return 0, false
	}
	return id, true
}

func (h *SecurityHandler) limit(c *gin.Context) int {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	return limit
}

func (h *SecurityHandler) serverError(c *gin.Context, msg string, err error) {
	zap.L().Error(msg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "Internal server error."})
}
