package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/infra/lock"
	"github.com/arklim/credential-gate/internal/infra/security"
	"github.com/arklim/credential-gate/internal/repository"
)

const (
	testIdentifier = "12345678"
	testPassword   = "Abc12345!"
	adminSecret    = "Adm1n!Secret"
	adminTokenKey  = "0123456789abcdef0123456789abcdef"
)

var testEpoch = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// memStore keeps accounts and audit events in memory; Atomic restores a
// snapshot when fn fails.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	audit    []domain.AuditEvent
	nextID   int64

	getErr    error
	recordErr error
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]domain.Account{}}
}

func (s *memStore) Accounts() port.AccountRepository { return memAccounts{s} }

func (s *memStore) Audit() port.AuditRepository { return memAudit{s} }

func (s *memStore) Atomic(_ context.Context, fn func(tx port.AccountStore) error) error {
	s.mu.Lock()
	accounts := make(map[string]domain.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	audit := append([]domain.AuditEvent(nil), s.audit...)
	nextID := s.nextID
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.accounts, s.audit, s.nextID = accounts, audit, nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) put(acc domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	acc.ID = s.nextID
	s.accounts[acc.Identifier] = acc
}

func (s *memStore) account(t *testing.T, identifier string) domain.Account {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[identifier]
	if !ok {
		t.Fatalf("account %s not stored", identifier)
	}
	return acc
}

func (s *memStore) addAudit(subject string, action domain.ActionType, outcome domain.Outcome, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.audit = append(s.audit, domain.AuditEvent{ID: s.nextID, OccurredAt: at, SubjectIdentifier: &subject, ActionType: action, Outcome: outcome})
}

func (s *memStore) auditCount(action domain.ActionType, outcome domain.Outcome) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.audit {
		if ev.ActionType == action && ev.Outcome == outcome {
			n++
		}
	}
	return n
}

func (s *memStore) lastAudit(t *testing.T) domain.AuditEvent {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audit) == 0 {
		t.Fatalf("expected audit events")
	}
	return s.audit[len(s.audit)-1]
}

type memAccounts struct{ s *memStore }

func (r memAccounts) GetByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.getErr != nil {
		return nil, r.s.getErr
	}
	acc, ok := r.s.accounts[identifier]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &acc, nil
}

func (r memAccounts) Upsert(_ context.Context, acc domain.Account) (domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.accounts[acc.Identifier]; ok {
		acc.ID = existing.ID
		acc.CreatedAt = existing.CreatedAt
	} else {
		r.s.nextID++
		acc.ID = r.s.nextID
	}
	r.s.accounts[acc.Identifier] = acc
	return acc, nil
}

func (r memAccounts) List(context.Context) ([]domain.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Account, 0, len(r.s.accounts))
	for _, acc := range r.s.accounts {
		out = append(out, acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r memAccounts) Count(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.accounts), nil
}

type memAudit struct{ s *memStore }

func (r memAudit) Record(_ context.Context, entry domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.recordErr != nil {
		return r.s.recordErr
	}
	r.s.nextID++
	r.s.audit = append(r.s.audit, domain.AuditEvent{
		ID:                r.s.nextID,
		OccurredAt:        entry.OccurredAt,
		SubjectIdentifier: entry.SubjectIdentifier,
		ActionType:        entry.ActionType,
		Outcome:           entry.Outcome,
		Detail:            entry.Detail,
	})
	return nil
}

func (r memAudit) List(context.Context) ([]domain.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.AuditEvent, 0, len(r.s.audit))
	for i := len(r.s.audit) - 1; i >= 0; i-- {
		out = append(out, r.s.audit[i])
	}
	return out, nil
}

func (r memAudit) Count(context.Context) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.audit), nil
}

func (r memAudit) FailureDates(_ context.Context, identifier string, since time.Time, limit int) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]struct{}{}
	for _, ev := range r.s.audit {
		if ev.SubjectIdentifier == nil || *ev.SubjectIdentifier != identifier {
			continue
		}
		if ev.ActionType != domain.ActionLogin || ev.Outcome != domain.OutcomeFailure || ev.OccurredAt.Before(since) {
			continue
		}
		seen[ev.OccurredAt.UTC().Format(domain.FailureDateLayout)] = struct{}{}
	}
	dates := make([]string, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if len(dates) > limit {
		dates = dates[:limit]
	}
	return dates, nil
}

// plainHasher avoids Argon2 cost in service tests.
type plainHasher struct {
	verifyCalls atomic.Int32
}

func (h *plainHasher) Hash(password string) (string, error) {
	return "plain$" + password, nil
}

func (h *plainHasher) Verify(password, encoded string) (bool, error) {
	h.verifyCalls.Add(1)
	if !strings.HasPrefix(encoded, "plain$") {
		return false, errors.New("unsupported hash")
	}
	return encoded == "plain$"+password, nil
}

type recordingEvents struct {
	mu               sync.Mutex
	registered       []domain.AccountRegisteredEvent
	statusChanged    []domain.AccountStatusChangedEvent
	passwordsChanged []domain.AccountPasswordChangedEvent
}

func (e *recordingEvents) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registered = append(e.registered, event)
	return nil
}

func (e *recordingEvents) PublishAccountStatusChanged(_ context.Context, event domain.AccountStatusChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusChanged = append(e.statusChanged, event)
	return nil
}

func (e *recordingEvents) PublishAccountPasswordChanged(_ context.Context, event domain.AccountPasswordChangedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passwordsChanged = append(e.passwordsChanged, event)
	return nil
}

type recordingMetrics struct {
	mu          sync.Mutex
	logins      map[string]int
	transitions []StatusTransition
}

func (m *recordingMetrics) ObserveLogin(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logins == nil {
		m.logins = map[string]int{}
	}
	m.logins[outcome]++
}

func (m *recordingMetrics) ObserveStatusTransition(from, to domain.AccountStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, StatusTransition{From: from, To: to})
}

type failingLocker struct{ err error }

func (l failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, l.err
}

type serviceHarness struct {
	store   *memStore
	clock   *testClock
	hasher  *plainHasher
	events  *recordingEvents
	metrics *recordingMetrics
	account *AccountService
	admin   *AdminService
}

func newHarness(t *testing.T) *serviceHarness {
	t.Helper()
	return newHarnessWithLocker(t, lock.NewKeyedLocker())
}

func newHarnessWithLocker(t *testing.T, locker port.AccountLocker) *serviceHarness {
	t.Helper()

	h := &serviceHarness{
		store:   newMemStore(),
		clock:   newTestClock(),
		hasher:  &plainHasher{},
		events:  &recordingEvents{},
		metrics: &recordingMetrics{},
	}
	log := zaptest.NewLogger(t)
	policy := security.NewPasswordPolicy(nil)

	h.account = NewAccountService(h.store, locker, h.hasher, policy, h.events, h.metrics, AccountServiceConfig{Rules: domain.DefaultStatusRules(), OperationTimeout: time.Second}, log)
	h.account.WithClock(h.clock.Now)

	tokens, err := security.NewAdminTokenManager([]byte(adminTokenKey), DefaultAdminIdentifier, time.Hour)
	if err != nil {
		t.Fatalf("NewAdminTokenManager returned error: %v", err)
	}
	secretHash, _ := h.hasher.Hash(adminSecret)
	h.admin = NewAdminService(h.store, locker, h.hasher, policy, tokens, h.events, h.metrics, AdminServiceConfig{Identifier: DefaultAdminIdentifier, PasswordHash: secretHash, OperationTimeout: time.Second}, log)
	h.admin.WithClock(h.clock.Now)

	return h
}

func (h *serviceHarness) register(t *testing.T, identifier string) domain.Account {
	t.Helper()
	acc, err := h.account.Register(context.Background(), identifier, testPassword, testPassword)
	if err != nil {
		t.Fatalf("Register(%s) returned error: %v", identifier, err)
	}
	return acc
}
