package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/repository"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "gate.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func recordFailure(t *testing.T, store *Store, identifier string, at time.Time) {
	t.Helper()
	err := store.Audit().Record(context.Background(), domain.AuditEntry{
		SubjectIdentifier: &identifier,
		ActionType:        domain.ActionLogin,
		Outcome:           domain.OutcomeFailure,
		OccurredAt:        at,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
}

func TestAccountRepository_UpsertInsertsThenUpdates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	createdAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	saved, err := store.Accounts().Upsert(ctx, domain.Account{
		Identifier:   "12345678",
		PasswordHash: "hash-1",
		Status:       domain.AccountStatusPristine,
		CreatedAt:    createdAt,
	})
	if err != nil {
		t.Fatalf("Upsert insert: %v", err)
	}
	if saved.ID == 0 {
		t.Fatalf("expected an id to be assigned")
	}

	lastAttempt := time.Date(2026, 3, 2, 9, 30, 15, 0, time.UTC)
	saved.LoginAttempts = 3
	saved.LastAttempt = domain.At(lastAttempt)
	saved.Status = domain.AccountStatusBlocked
	saved.CreatedAt = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

	updated, err := store.Accounts().Upsert(ctx, saved)
	if err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if updated.ID != saved.ID {
		t.Fatalf("expected id %d to be kept, got %d", saved.ID, updated.ID)
	}
	if !updated.CreatedAt.Equal(createdAt) {
		t.Fatalf("created_at must not change, got %s", updated.CreatedAt)
	}

	loaded, err := store.Accounts().GetByIdentifier(ctx, "12345678")
	if err != nil {
		t.Fatalf("GetByIdentifier: %v", err)
	}
	if loaded.Status != domain.AccountStatusBlocked || loaded.LoginAttempts != 3 {
		t.Fatalf("unexpected account after update: %+v", loaded)
	}
	if at, ok := loaded.LastAttempt.Time(); !ok || !at.Equal(lastAttempt) {
		t.Fatalf("expected last attempt %s, got %v", lastAttempt, loaded.LastAttempt)
	}
	if loaded.LastLogin.Present() {
		t.Fatalf("expected last login to stay absent")
	}

	total, err := store.Accounts().Count(ctx)
	if err != nil || total != 1 {
		t.Fatalf("expected one account, got %d (%v)", total, err)
	}
}

func TestAccountRepository_GetByIdentifierNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Accounts().GetByIdentifier(context.Background(), "99999999")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountRepository_MalformedTimestampSurvives(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO accounts (identifier, password_hash, status, login_attempts, last_login, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"7654321", "hash", "active", 0, "last tuesday", "2026-01-01 00:00:00.000")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	account, err := store.Accounts().GetByIdentifier(ctx, "7654321")
	if err != nil {
		t.Fatalf("GetByIdentifier: %v", err)
	}
	if !account.LastLogin.Malformed() {
		t.Fatalf("expected malformed last login, got %v", account.LastLogin)
	}

	account.LoginAttempts = 1
	if _, err := store.Accounts().Upsert(ctx, *account); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	var raw string
	if err := store.db.QueryRowContext(ctx, `SELECT last_login FROM accounts WHERE identifier = ?`, "7654321").Scan(&raw); err != nil {
		t.Fatalf("select raw: %v", err)
	}
	if raw != "last tuesday" {
		t.Fatalf("expected malformed value to be written back unchanged, got %q", raw)
	}
}

func TestAccountRepository_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, identifier := range []string{"100001", "100002", "100003"} {
		_, err := store.Accounts().Upsert(ctx, domain.Account{
			Identifier: identifier,
			Status:     domain.AccountStatusPristine,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("Upsert %s: %v", identifier, err)
		}
	}

	accounts, err := store.Accounts().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("expected 3 accounts, got %d", len(accounts))
	}
	if accounts[0].Identifier != "100003" || accounts[2].Identifier != "100001" {
		t.Fatalf("unexpected order: %s, %s, %s", accounts[0].Identifier, accounts[1].Identifier, accounts[2].Identifier)
	}
}

func TestAuditRepository_ListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	detail := "account 12345678 -> suspended"
	subject := "admin"
	entries := []domain.AuditEntry{
		{ActionType: domain.ActionRegistration, Outcome: domain.OutcomeSuccess, OccurredAt: base},
		{SubjectIdentifier: &subject, ActionType: domain.ActionStatusChange, Outcome: domain.OutcomeAdminOK, Detail: &detail, OccurredAt: base.Add(time.Second)},
	}
	for _, entry := range entries {
		if err := store.Audit().Record(ctx, entry); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	events, err := store.Audit().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	newest := events[0]
	if newest.ActionType != domain.ActionStatusChange || newest.Outcome != domain.OutcomeAdminOK {
		t.Fatalf("unexpected newest event: %+v", newest)
	}
	if newest.Detail == nil || *newest.Detail != detail || newest.SubjectIdentifier == nil || *newest.SubjectIdentifier != subject {
		t.Fatalf("expected detail and subject to round trip")
	}
	if events[1].SubjectIdentifier != nil {
		t.Fatalf("expected nil subject for system event")
	}
	if !newest.OccurredAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected timestamp %s", newest.OccurredAt)
	}

	total, err := store.Audit().Count(ctx)
	if err != nil || total != 2 {
		t.Fatalf("expected two events, got %d (%v)", total, err)
	}
}

func TestAuditRepository_FailureDates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	for day := 0; day < 7; day++ {
		recordFailure(t, store, "12345678", now.AddDate(0, 0, -day))
	}
	// a second failure on the same day and noise that must be filtered out
	recordFailure(t, store, "12345678", now.Add(-time.Hour))
	recordFailure(t, store, "87654321", now)
	other := "12345678"
	if err := store.Audit().Record(ctx, domain.AuditEntry{
		SubjectIdentifier: &other,
		ActionType:        domain.ActionLogin,
		Outcome:           domain.OutcomeSuccess,
		OccurredAt:        now,
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	since := domain.DefaultStatusRules().FailureWindowStart(now)
	dates, err := store.Audit().FailureDates(ctx, "12345678", since, domain.DefaultFlagWindowDays)
	if err != nil {
		t.Fatalf("FailureDates: %v", err)
	}

	want := []string{"2026-03-10", "2026-03-09", "2026-03-08", "2026-03-07", "2026-03-06"}
	if len(dates) != len(want) {
		t.Fatalf("expected %v, got %v", want, dates)
	}
	for i := range want {
		if dates[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, dates)
		}
	}
	if !domain.HasConsecutiveFailureDays(dates, domain.DefaultFlagWindowDays, now) {
		t.Fatalf("expected the stored history to satisfy the flag rule")
	}
}

func TestStore_AtomicRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.Atomic(ctx, func(tx port.AccountStore) error {
		if _, err := tx.Accounts().Upsert(ctx, domain.Account{Identifier: "12345678", Status: domain.AccountStatusPristine}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := store.Accounts().GetByIdentifier(ctx, "12345678"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected rollback to discard the account, got %v", err)
	}
}

func TestStore_AtomicCommits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	identifier := "12345678"
	err := store.Atomic(ctx, func(tx port.AccountStore) error {
		if _, err := tx.Accounts().Upsert(ctx, domain.Account{Identifier: identifier, Status: domain.AccountStatusPristine}); err != nil {
			return err
		}
		return tx.Audit().Record(ctx, domain.AuditEntry{
			SubjectIdentifier: &identifier,
			ActionType:        domain.ActionRegistration,
			Outcome:           domain.OutcomeSuccess,
		})
	})
	if err != nil {
		t.Fatalf("Atomic: %v", err)
	}

	users, _ := store.Accounts().Count(ctx)
	events, _ := store.Audit().Count(ctx)
	if users != 1 || events != 1 {
		t.Fatalf("expected 1 account and 1 event, got %d and %d", users, events)
	}
}
