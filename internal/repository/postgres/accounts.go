package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

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

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
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

	account, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return account, nil
}

// Upsert inserts the account or updates its mutable fields when the identifier exists.
func (r *AccountRepository) Upsert(ctx context.Context, account domain.Account) (domain.Account, error) {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
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
			createdAt,
		).
		Suffix(`ON CONFLICT (identifier) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			status = EXCLUDED.status,
			login_attempts = EXCLUDED.login_attempts,
			last_login = EXCLUDED.last_login,
			last_attempt = EXCLUDED.last_attempt
			RETURNING id, created_at`).
		ToSql()
	if err != nil {
		return domain.Account{}, fmt.Errorf("build upsert account sql: %w", err)
	}

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&account.ID, &account.CreatedAt); err != nil {
		return domain.Account{}, mapWriteError("upsert account", err)
	}
	account.CreatedAt = account.CreatedAt.UTC()
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

	rows, err := r.exec.Query(ctx, stmt, args...)
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

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account     domain.Account
		status      string
		lastLogin   *string
		lastAttempt *string
	)
	if err := row.Scan(
		&account.ID,
		&account.Identifier,
		&account.PasswordHash,
		&status,
		&account.LoginAttempts,
		&lastLogin,
		&lastAttempt,
		&account.CreatedAt,
	); err != nil {
		return nil, err
	}

	account.Status = domain.AccountStatus(status)
	account.LastLogin = parseNullableTimestamp(lastLogin)
	account.LastAttempt = parseNullableTimestamp(lastAttempt)
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}

func timestampValue(ts domain.Timestamp) any {
	if !ts.Present() {
		return nil
	}
	return ts.String()
}

func parseNullableTimestamp(raw *string) domain.Timestamp {
	if raw == nil {
		return domain.Timestamp{}
	}
	return domain.ParseTimestamp(*raw)
}

func countRows(ctx context.Context, exec pgExecutor, builder squirrel.StatementBuilderType, table string) (int, error) {
	stmt, args, err := builder.Select("COUNT(*)").From(table).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count %s sql: %w", table, err)
	}
	var total int
	if err := exec.QueryRow(ctx, stmt, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return total, nil
}
