package postgres

import (
	"context"
	"fmt"
)

// last_login and last_attempt are TEXT so values imported from older
// deployments survive even when they do not parse.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id             BIGSERIAL PRIMARY KEY,
		identifier     TEXT NOT NULL UNIQUE,
		password_hash  TEXT NOT NULL,
		status         TEXT NOT NULL,
		login_attempts INTEGER NOT NULL DEFAULT 0,
		last_login     TEXT,
		last_attempt   TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id                 BIGSERIAL PRIMARY KEY,
		occurred_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		subject_identifier TEXT,
		action_type        TEXT NOT NULL,
		outcome            TEXT NOT NULL,
		detail             TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_subject_idx
		ON audit_events (subject_identifier, action_type, outcome, occurred_at)`,
}

// EnsureSchema creates the tables and indexes when they do not exist yet.
func EnsureSchema(ctx context.Context, exec pgExecutor) error {
	for _, stmt := range schemaStatements {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
