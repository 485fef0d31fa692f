package domain

import "time"

// AccountRegisteredEvent represents the payload for account.registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	Identifier   string
	Status       AccountStatus
	RegisteredAt time.Time
}

// AccountStatusChangedEvent represents the payload for account.status_changed messages.
type AccountStatusChangedEvent struct {
	EventID    string
	Identifier string
	From       AccountStatus
	To         AccountStatus
	// Cause is the rule name that fired, "login" for a successful login, or "admin" for an override.
	Cause     string
	ChangedAt time.Time
}

// AccountPasswordChangedEvent represents the payload for account.password_changed messages.
type AccountPasswordChangedEvent struct {
	EventID    string
	Identifier string
	ChangedBy  string
	ChangedAt  time.Time
}
