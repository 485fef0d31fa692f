package domain

import (
	"strings"
	"time"
)

// AccountStatus enumerates the lifecycle states of an account.
type AccountStatus string

const (
	AccountStatusPristine  AccountStatus = "pristine"
	AccountStatusActive    AccountStatus = "active"
	AccountStatusPaused    AccountStatus = "paused"
	AccountStatusFlagged   AccountStatus = "flagged"
	AccountStatusBlocked   AccountStatus = "blocked"
	AccountStatusSuspended AccountStatus = "suspended"
)

var knownStatuses = map[AccountStatus]struct{}{
	AccountStatusPristine:  {},
	AccountStatusActive:    {},
	AccountStatusPaused:    {},
	AccountStatusFlagged:   {},
	AccountStatusBlocked:   {},
	AccountStatusSuspended: {},
}

// ParseAccountStatus normalises textual input into a known status.
func ParseAccountStatus(value string) (AccountStatus, bool) {
	status := AccountStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := knownStatuses[status]
	return status, ok
}

// AccountStatuses lists every known status in lifecycle order.
func AccountStatuses() []AccountStatus {
	return []AccountStatus{
		AccountStatusPristine,
		AccountStatusActive,
		AccountStatusPaused,
		AccountStatusFlagged,
		AccountStatusBlocked,
		AccountStatusSuspended,
	}
}

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID            int64
	Identifier    string
	PasswordHash  string
	Status        AccountStatus
	LoginAttempts int
	LastLogin     Timestamp
	LastAttempt   Timestamp
	CreatedAt     time.Time
}

// Sanitized returns a copy safe to hand to callers outside the service layer.
func (a Account) Sanitized() Account {
	a.PasswordHash = ""
	return a
}

// ActionType categorises audit events.
type ActionType string

const (
	ActionLogin          ActionType = "login"
	ActionRegistration   ActionType = "registration"
	ActionAdminLogin     ActionType = "admin_login"
	ActionStatusChange   ActionType = "status_change"
	ActionPasswordChange ActionType = "password_change"
	ActionLogout         ActionType = "logout"
)

// Outcome is the result code stored with an audit event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	// OutcomeAdminOK marks mutations performed through the administrative override.
	OutcomeAdminOK Outcome = "admin-ok"
)

// AuditEntry is the write model for a new audit event.
type AuditEntry struct {
	SubjectIdentifier *string
	ActionType        ActionType
	Outcome           Outcome
	Detail            *string
	OccurredAt        time.Time
}

// AuditEvent is an immutable, persisted audit record.
type AuditEvent struct {
	ID                int64
	OccurredAt        time.Time
	SubjectIdentifier *string
	ActionType        ActionType
	Outcome           Outcome
	Detail            *string
}

// Stats summarises the stored collections.
type Stats struct {
	TotalUsers      int
	TotalActivities int
}
