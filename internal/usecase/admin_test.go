package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/credential-gate/internal/core/domain"
)

func TestAdminLogin(t *testing.T) {
	h := newHarness(t)

	session, err := h.admin.Login(context.Background(), adminSecret)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if session.Token == "" || session.Subject != DefaultAdminIdentifier {
		t.Fatalf("unexpected session: %+v", session)
	}

	claims, err := h.admin.ParseToken(session.Token)
	if err != nil {
		t.Fatalf("ParseToken returned error: %v", err)
	}
	if claims.Subject != DefaultAdminIdentifier {
		t.Fatalf("expected subject %s, got %s", DefaultAdminIdentifier, claims.Subject)
	}

	last := h.store.lastAudit(t)
	if last.ActionType != domain.ActionAdminLogin || last.Outcome != domain.OutcomeSuccess || *last.SubjectIdentifier != DefaultAdminIdentifier {
		t.Fatalf("expected admin login audit, got %+v", last)
	}
}

func TestAdminLoginWrongSecret(t *testing.T) {
	h := newHarness(t)

	for _, secret := range []string{"", "nope", testPassword} {
		if _, err := h.admin.Login(context.Background(), secret); !errors.Is(err, ErrAdminDenied) {
			t.Fatalf("Login(%q): expected ErrAdminDenied, got %v", secret, err)
		}
	}
	if n := h.store.auditCount(domain.ActionAdminLogin, domain.OutcomeFailure); n != 3 {
		t.Fatalf("expected 3 failed admin logins audited, got %d", n)
	}
}

func TestAdminParseTokenRejectsGarbage(t *testing.T) {
	h := newHarness(t)

	if _, err := h.admin.ParseToken("not-a-token"); !errors.Is(err, ErrAdminDenied) {
		t.Fatalf("expected ErrAdminDenied, got %v", err)
	}
}

func TestChangeStatusReservedAccount(t *testing.T) {
	h := newHarness(t)

	for _, status := range []string{"active", "suspended", "pristine", "bogus", ""} {
		_, err := h.admin.ChangeStatus(context.Background(), DefaultAdminIdentifier, status)
		if !errors.Is(err, ErrReservedAccount) || !errors.Is(err, ErrConflict) {
			t.Fatalf("ChangeStatus(admin, %q): expected reserved conflict, got %v", status, err)
		}
	}
	if n, _ := h.store.Audit().Count(context.Background()); n != 0 {
		t.Fatalf("expected no audit for rejected override, got %d", n)
	}
}

func TestChangeStatusValidation(t *testing.T) {
	h := newHarness(t)
	h.register(t, testIdentifier)

	_, err := h.admin.ChangeStatus(context.Background(), testIdentifier, "frozen")
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	if _, err := h.admin.ChangeStatus(context.Background(), "87654321", "active"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	_, err = h.admin.ChangeStatus(context.Background(), testIdentifier, "PRISTINE")
	if !errors.Is(err, ErrStatusUnchanged) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected unchanged conflict, got %v", err)
	}
}

func TestChangeStatusOverridesAndAudits(t *testing.T) {
	h := newHarness(t)
	h.register(t, testIdentifier)
	for i := 0; i < 5; i++ {
		h.clock.Advance(time.Second)
		_, _ = h.account.Authenticate(context.Background(), testIdentifier, "wrong")
	}
	if h.store.account(t, testIdentifier).Status != domain.AccountStatusBlocked {
		t.Fatalf("precondition: expected blocked account")
	}

	updated, err := h.admin.ChangeStatus(context.Background(), testIdentifier, "active")
	if err != nil {
		t.Fatalf("ChangeStatus returned error: %v", err)
	}
	if updated.Status != domain.AccountStatusActive || updated.PasswordHash != "" {
		t.Fatalf("expected sanitized active account, got %+v", updated)
	}
	if updated.LoginAttempts != 5 {
		t.Fatalf("override must only touch the status, got counter %d", updated.LoginAttempts)
	}

	last := h.store.lastAudit(t)
	if last.ActionType != domain.ActionStatusChange || last.Outcome != domain.OutcomeAdminOK {
		t.Fatalf("expected status change audit, got %+v", last)
	}
	if *last.SubjectIdentifier != DefaultAdminIdentifier || last.Detail == nil || *last.Detail != "account 12345678 -> active" {
		t.Fatalf("unexpected audit subject/detail: %+v", last)
	}

	events := h.events.statusChanged
	if got := events[len(events)-1]; got.Cause != CauseAdmin || got.From != domain.AccountStatusBlocked || got.To != domain.AccountStatusActive {
		t.Fatalf("expected admin status event, got %+v", got)
	}

	h.clock.Advance(time.Minute)
	if _, err := h.account.Authenticate(context.Background(), testIdentifier, testPassword); err != nil {
		t.Fatalf("expected login after reactivation, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	h.register(t, testIdentifier)

	var validation *ValidationError
	if err := h.admin.ChangePassword(context.Background(), testIdentifier, "weak"); !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := h.admin.ChangePassword(context.Background(), "87654321", "N3w!Passw0rd"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := h.admin.ChangePassword(context.Background(), DefaultAdminIdentifier, "N3w!Passw0rd"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected reserved identifier to have no account row, got %v", err)
	}

	if err := h.admin.ChangePassword(context.Background(), testIdentifier, "N3w!Passw0rd"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if n := h.store.auditCount(domain.ActionPasswordChange, domain.OutcomeAdminOK); n != 1 {
		t.Fatalf("expected password change audit, got %d", n)
	}
	if len(h.events.passwordsChanged) != 1 || h.events.passwordsChanged[0].ChangedBy != DefaultAdminIdentifier {
		t.Fatalf("expected password changed event, got %+v", h.events.passwordsChanged)
	}

	if _, err := h.account.Authenticate(context.Background(), testIdentifier, testPassword); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must stop working, got %v", err)
	}
	if _, err := h.account.Authenticate(context.Background(), testIdentifier, "N3w!Passw0rd"); err != nil {
		t.Fatalf("new password must work, got %v", err)
	}
}

func TestAdminCredentialOnlyFromConfig(t *testing.T) {
	h := newHarness(t)

	if err := h.admin.ChangePassword(context.Background(), DefaultAdminIdentifier, "N3w!Passw0rd"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for the admin identifier, got %v", err)
	}
	if n := h.store.auditCount(domain.ActionPasswordChange, domain.OutcomeAdminOK); n != 0 {
		t.Fatalf("expected no password change audit, got %d", n)
	}

	if _, err := h.admin.Login(context.Background(), "N3w!Passw0rd"); !errors.Is(err, ErrAdminDenied) {
		t.Fatalf("expected the attempted secret to be refused, got %v", err)
	}
	if _, err := h.admin.Login(context.Background(), adminSecret); err != nil {
		t.Fatalf("configured secret must keep working, got %v", err)
	}
}

func TestListUsersAndStats(t *testing.T) {
	h := newHarness(t)
	h.register(t, "111111")
	h.clock.Advance(time.Second)
	h.register(t, "222222")

	users, err := h.admin.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if len(users) != 2 || users[0].Identifier != "222222" {
		t.Fatalf("expected newest first, got %+v", users)
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Fatalf("expected sanitized accounts")
		}
	}

	activities, err := h.admin.ListActivities(context.Background())
	if err != nil {
		t.Fatalf("ListActivities returned error: %v", err)
	}
	if len(activities) != 2 || *activities[0].SubjectIdentifier != "222222" {
		t.Fatalf("expected newest activity first, got %+v", activities)
	}

	stats, err := h.admin.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.TotalUsers != 2 || stats.TotalActivities != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
