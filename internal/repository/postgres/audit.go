package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
)

// AuditRepository implements port.AuditRepository using PostgreSQL.
type AuditRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AuditRepository = (*AuditRepository)(nil)

// NewAuditRepository constructs an audit repository backed by exec.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	return &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AuditRepository) WithTx(tx pgx.Tx) *AuditRepository {
	if tx == nil {
		return r
	}
	return &AuditRepository{exec: tx, builder: r.builder}
}

// Record appends an audit event.
func (r *AuditRepository) Record(ctx context.Context, entry domain.AuditEntry) error {
	occurredAt := entry.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.
		Insert("audit_events").
		Columns("occurred_at", "subject_identifier", "action_type", "outcome", "detail").
		Values(occurredAt, entry.SubjectIdentifier, string(entry.ActionType), string(entry.Outcome), entry.Detail).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// List returns all audit events, newest first.
func (r *AuditRepository) List(ctx context.Context) ([]domain.AuditEvent, error) {
	stmt, args, err := r.builder.
		Select("id", "occurred_at", "subject_identifier", "action_type", "outcome", "detail").
		From("audit_events").
		OrderBy("occurred_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event      domain.AuditEvent
			actionType string
			outcome    string
		)
		if err := rows.Scan(&event.ID, &event.OccurredAt, &event.SubjectIdentifier, &actionType, &outcome, &event.Detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.OccurredAt = event.OccurredAt.UTC()
		event.ActionType = domain.ActionType(actionType)
		event.Outcome = domain.Outcome(outcome)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

// Count returns the number of stored audit events.
func (r *AuditRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.exec, r.builder, "audit_events")
}

// FailureDates returns distinct UTC dates with failed logins for identifier, newest first.
func (r *AuditRepository) FailureDates(ctx context.Context, identifier string, since time.Time, limit int) ([]string, error) {
	query := r.builder.
		Select("DISTINCT to_char(occurred_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day").
		From("audit_events").
		Where(squirrel.Eq{
			"subject_identifier": identifier,
			"action_type":        string(domain.ActionLogin),
			"outcome":            string(domain.OutcomeFailure),
		}).
		Where(squirrel.GtOrEq{"occurred_at": since.UTC()}).
		OrderBy("day DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build failure dates sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query failure dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan failure date: %w", err)
		}
		dates = append(dates, day)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure dates: %w", err)
	}
	return dates, nil
}
