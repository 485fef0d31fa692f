package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/repository"
)

var accountColumns = []string{
	"id",
	"identifier",
	"password_hash",
	"status",
	"login_attempts",
	"last_login",
	"last_attempt",
	"created_at",
}

// AccountRepository implements port.AccountRepository using SQLite.
type AccountRepository struct {
	exec    sqlExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx *sql.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{exec: tx, builder: r.builder}
}

// GetByIdentifier retrieves an account by its unique identifier.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{"identifier": identifier}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	account, err := scanAccount(r.exec.QueryRowContext(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return account, nil
}

// Upsert inserts the account or updates its mutable fields when the identifier exists.
func (r *AccountRepository) Upsert(ctx context.Context, account domain.Account) (domain.Account, error) {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	stmt, args, err := r.builder.
		Insert("accounts").
		Columns("identifier", "password_hash", "status", "login_attempts", "last_login", "last_attempt", "created_at").
		Values(
			account.Identifier,
			account.PasswordHash,
			string(account.Status),
			account.LoginAttempts,
			timestampValue(account.LastLogin),
			timestampValue(account.LastAttempt),
			formatTime(account.CreatedAt),
		).
		Suffix(`ON CONFLICT (identifier) DO UPDATE SET
			password_hash = excluded.password_hash,
			status = excluded.status,
			login_attempts = excluded.login_attempts,
			last_login = excluded.last_login,
			last_attempt = excluded.last_attempt
			RETURNING id, created_at`).
		ToSql()
	if err != nil {
		return domain.Account{}, fmt.Errorf("build upsert account sql: %w", err)
	}

	var createdAt string
	if err := r.exec.QueryRowContext(ctx, stmt, args...).Scan(&account.ID, &createdAt); err != nil {
		return domain.Account{}, mapWriteError("upsert account", err)
	}
	account.CreatedAt = parseTime(createdAt)
	return account, nil
}

// List returns all accounts, newest first.
func (r *AccountRepository) List(ctx context.Context) ([]domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("accounts").
		OrderBy("created_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list accounts sql: %w", err)
	}

	rows, err := r.exec.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, *account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}
	return accounts, nil
}

// Count returns the number of stored accounts.
func (r *AccountRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.exec, r.builder, "accounts")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		account     domain.Account
		status      string
		lastLogin   sql.NullString
		lastAttempt sql.NullString
		createdAt   string
	)
	if err := row.Scan(
		&account.ID,
		&account.Identifier,
		&account.PasswordHash,
		&status,
		&account.LoginAttempts,
		&lastLogin,
		&lastAttempt,
		&createdAt,
	); err != nil {
		return nil, err
	}

	account.Status = domain.AccountStatus(status)
	account.LastLogin = parseNullableTimestamp(lastLogin)
	account.LastAttempt = parseNullableTimestamp(lastAttempt)
	account.CreatedAt = parseTime(createdAt)
	return &account, nil
}

func timestampValue(ts domain.Timestamp) any {
	if !ts.Present() {
		return nil
	}
	return ts.String()
}

func parseNullableTimestamp(raw sql.NullString) domain.Timestamp {
	if !raw.Valid {
		return domain.Timestamp{}
	}
	return domain.ParseTimestamp(raw.String)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(domain.StoredTimeLayout)
}

func parseTime(raw string) time.Time {
	at, _ := domain.ParseTimestamp(raw).Time()
	return at
}

func countRows(ctx context.Context, exec sqlExecutor, builder squirrel.StatementBuilderType, table string) (int, error) {
	stmt, args, err := builder.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count %s sql: %w", table, err)
	}
	var total int
	if err := exec.QueryRowContext(ctx, stmt, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return total, nil
}
