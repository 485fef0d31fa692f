package postgres

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/repository"
)

const uniqueViolation = "23505"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgDB is satisfied by *pgxpool.Pool and by pgxmock pools in tests.
type pgDB interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store implements port.AccountStore on PostgreSQL.
type Store struct {
	db       pgDB
	inTx     bool
	accounts *AccountRepository
	audit    *AuditRepository
}

var _ port.AccountStore = (*Store)(nil)

// NewStore wires the account and audit repositories around db.
func NewStore(db pgDB) *Store {
	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
	return &Store{
		db:       db,
		accounts: &AccountRepository{exec: db, builder: builder},
		audit:    &AuditRepository{exec: db, builder: builder},
	}
}

// Accounts returns the account repository bound to this store.
func (s *Store) Accounts() port.AccountRepository { return s.accounts }

// Audit returns the audit repository bound to this store.
func (s *Store) Audit() port.AuditRepository { return s.audit }

// Atomic runs fn inside a transaction. Nested calls reuse the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(tx port.AccountStore) error) error {
	if s.inTx {
		return fn(s)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	scoped := &Store{
		db:       s.db,
		inTx:     true,
		accounts: s.accounts.WithTx(tx),
		audit:    s.audit.WithTx(tx),
	}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	if pinger, ok := s.db.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
