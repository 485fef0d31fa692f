package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as UTC text in domain.StoredTimeLayout so that they
// compare lexically and unparseable legacy values are preserved.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		identifier     TEXT NOT NULL UNIQUE,
		password_hash  TEXT NOT NULL,
		status         TEXT NOT NULL,
		login_attempts INTEGER NOT NULL DEFAULT 0,
		last_login     TEXT,
		last_attempt   TEXT,
		created_at     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id                 INTEGER PRIMARY KEY AUTOINCREMENT,
		occurred_at        TEXT NOT NULL,
		subject_identifier TEXT,
		action_type        TEXT NOT NULL,
		outcome            TEXT NOT NULL,
		detail             TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS audit_events_subject_idx
		ON audit_events (subject_identifier, action_type, outcome, occurred_at)`,
}

// EnsureSchema creates the tables and indexes in a single transaction.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
