package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/transport/http/middleware"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string   `json:"error"`
	Reasons []string `json:"reasons,omitempty"`
	Status  string   `json:"status,omitempty"`
	TraceID string   `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: middleware.GetTraceID(c),
	}
}

// RegisterRequest is the payload of the registration endpoint.
type RegisterRequest struct {
	Identifier      string `json:"identifier"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// LoginRequest is the payload of the account login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// LogoutRequest is the payload of the logout endpoint.
type LogoutRequest struct {
	Identifier string `json:"identifier" binding:"required"`
}

// AccountSummary is the public view of an account. The password hash is never exposed.
type AccountSummary struct {
	ID            int64                `json:"id"`
	Identifier    string               `json:"identifier"`
	Status        domain.AccountStatus `json:"status"`
	LoginAttempts int                  `json:"login_attempts"`
	LastLogin     domain.Timestamp     `json:"last_login"`
	LastAttempt   domain.Timestamp     `json:"last_attempt"`
	CreatedAt     time.Time            `json:"created_at"`
}

// LoginResponse is returned for a successful login.
type LoginResponse struct {
	Account AccountSummary `json:"account"`
}

// AdminLoginRequest carries the administrative secret.
type AdminLoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// AdminLoginResponse carries the admin session token.
type AdminLoginResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AuditEventSummary is the public view of an audit event.
type AuditEventSummary struct {
	ID                int64             `json:"id"`
	OccurredAt        time.Time         `json:"occurred_at"`
	SubjectIdentifier *string           `json:"subject_identifier"`
	ActionType        domain.ActionType `json:"action_type"`
	Outcome           domain.Outcome    `json:"outcome"`
	Detail            *string           `json:"detail,omitempty"`
}

// UserListResponse wraps the account listing.
type UserListResponse struct {
	Users []AccountSummary `json:"users"`
}

// ActivityListResponse wraps the audit listing.
type ActivityListResponse struct {
	Activities []AuditEventSummary `json:"activities"`
}

// StatsResponse reports collection sizes.
type StatsResponse struct {
	TotalUsers      int `json:"total_users"`
	TotalActivities int `json:"total_activities"`
}

// ChangeStatusRequest is the payload of the admin status override.
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangePasswordRequest is the payload of the admin password change.
type ChangePasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse describes readiness probe results with dependency checks.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

func newAccountSummary(acc domain.Account) AccountSummary {
	return AccountSummary{
		ID:            acc.ID,
		Identifier:    acc.Identifier,
		Status:        acc.Status,
		LoginAttempts: acc.LoginAttempts,
		LastLogin:     acc.LastLogin,
		LastAttempt:   acc.LastAttempt,
		CreatedAt:     acc.CreatedAt,
	}
}

func newAuditEventSummary(ev domain.AuditEvent) AuditEventSummary {
	return AuditEventSummary{
		ID:                ev.ID,
		OccurredAt:        ev.OccurredAt,
		SubjectIdentifier: ev.SubjectIdentifier,
		ActionType:        ev.ActionType,
		Outcome:           ev.Outcome,
		Detail:            ev.Detail,
	}
}
