package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/repository"
)

type sqlExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements port.AccountStore on an embedded SQLite database.
type Store struct {
	db       *sql.DB
	inTx     bool
	accounts *AccountRepository
	audit    *AuditRepository
}

var _ port.AccountStore = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single connection serialises writers and keeps transactions on one handle
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return NewStore(db), nil
}

// NewStore wires the repositories around an already opened database.
func NewStore(db *sql.DB) *Store {
	builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question)
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

	tx, err := s.db.BeginTx(ctx, nil)
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
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping verifies connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func mapWriteError(op string, err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
