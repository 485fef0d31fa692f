package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
)

// AuditRepository implements port.AuditRepository using SQLite.
type AuditRepository struct {
	exec    sqlExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AuditRepository = (*AuditRepository)(nil)

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AuditRepository) WithTx(tx *sql.Tx) *AuditRepository {
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
		Values(formatTime(occurredAt), nullableString(entry.SubjectIdentifier), string(entry.ActionType), string(entry.Outcome), nullableString(entry.Detail)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.ExecContext(ctx, stmt, args...); err != nil {
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

	rows, err := r.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event      domain.AuditEvent
			occurredAt string
			subject    sql.NullString
			actionType string
			outcome    string
			detail     sql.NullString
		)
		if err := rows.Scan(&event.ID, &occurredAt, &subject, &actionType, &outcome, &detail); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.OccurredAt = parseTime(occurredAt)
		event.SubjectIdentifier = stringPtr(subject)
		event.ActionType = domain.ActionType(actionType)
		event.Outcome = domain.Outcome(outcome)
		event.Detail = stringPtr(detail)
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
		Select("DATE(occurred_at) AS day").
		From("audit_events").
		Where(squirrel.Eq{
			"subject_identifier": identifier,
			"action_type":        string(domain.ActionLogin),
			"outcome":            string(domain.OutcomeFailure),
		}).
		Where(squirrel.GtOrEq{"occurred_at": formatTime(since)}).
		GroupBy("day").
		OrderBy("day DESC")
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build failure dates sql: %w", err)
	}

	rows, err := r.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query failure dates: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var day sql.NullString
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan failure date: %w", err)
		}
		// DATE() yields NULL for unparseable text; keep the slot so the run check fails
		dates = append(dates, day.String)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failure dates: %w", err)
	}
	return dates, nil
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func stringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := value.String
	return &v
}
