package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/infra/lock"
	"github.com/arklim/credential-gate/internal/infra/logger"
	"github.com/arklim/credential-gate/internal/infra/security"
	"github.com/arklim/credential-gate/internal/repository"
)

const (
	tracerName = "github.com/arklim/credential-gate/internal/usecase"

	defaultOperationTimeout = 5 * time.Second

	// CauseLogin is the transition cause recorded when a successful login activates an account.
	CauseLogin = "login"
	// CauseBlocked is the transition cause recorded when rapid failures block an account.
	CauseBlocked = "blocked"
	// CauseAdmin is the transition cause recorded for the administrative override.
	CauseAdmin = "admin"

	loginOutcomeSuccess            = "success"
	loginOutcomeInvalidCredentials = "invalid_credentials"
	loginOutcomeDenied             = "denied"
	loginOutcomeNotFound           = "not_found"
	loginOutcomeError              = "error"

	passwordMismatchReason = "passwords do not match"
)

// StatusTransition describes one status change applied during an operation.
type StatusTransition struct {
	From  domain.AccountStatus
	To    domain.AccountStatus
	Cause string
}

// AuthResult is returned by Authenticate. Account is always sanitized and is
// populated for successful, denied and wrong-password attempts alike.
type AuthResult struct {
	Account     domain.Account
	Transitions []StatusTransition
}

// AccountServiceConfig tunes the account service.
type AccountServiceConfig struct {
	Rules domain.StatusRules
	// OperationTimeout bounds every storage sequence, lock acquisition included.
	OperationTimeout time.Duration
}

// AccountService owns registration, authentication and logout.
type AccountService struct {
	store       port.AccountStore
	locker      port.AccountLocker
	hasher      port.PasswordHasher
	policy      port.PasswordPolicyValidator
	identifiers port.IdentifierValidator
	events      port.EventPublisher
	metrics     port.AccountMetrics
	rules       domain.StatusRules
	timeout     time.Duration
	tracer      trace.Tracer
	logger      *zap.Logger
	now         func() time.Time
}

// NewAccountService constructs an AccountService. A nil locker falls back to an
// in-process keyed lock, a nil policy to the default password policy, and nil
// events or metrics disable publishing and counting.
func NewAccountService(store port.AccountStore, locker port.AccountLocker, hasher port.PasswordHasher, policy port.PasswordPolicyValidator, events port.EventPublisher, metrics port.AccountMetrics, cfg AccountServiceConfig, log *zap.Logger) *AccountService {
	if locker == nil {
		locker = lock.NewKeyedLocker()
	}
	if policy == nil {
		policy = security.NewPasswordPolicy(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	return &AccountService{
		store:       store,
		locker:      locker,
		hasher:      hasher,
		policy:      policy,
		identifiers: security.IdentifierFormat{},
		events:      events,
		metrics:     metrics,
		rules:       cfg.Rules.WithDefaults(),
		timeout:     timeout,
		tracer:      otel.Tracer(tracerName),
		logger:      log,
		now:         time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AccountService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register validates and stores a new pristine account.
func (s *AccountService) Register(ctx context.Context, identifier, password, confirmPassword string) (domain.Account, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.Register")
	defer span.End()

	identifier = strings.TrimSpace(identifier)

	var reasons []string
	if err := s.identifiers.Validate(identifier); err != nil {
		reasons = append(reasons, err.Error())
	}
	reasons = append(reasons, s.policy.Violations(password)...)
	if password != confirmPassword {
		reasons = append(reasons, passwordMismatchReason)
	}
	if len(reasons) > 0 {
		return domain.Account{}, endSpan(span, newValidationError(reasons...))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return domain.Account{}, endSpan(span, fmt.Errorf("hash password: %w", err))
	}

	ctx, done, err := enterGuard(ctx, s.locker, s.timeout, identifier)
	if err != nil {
		return domain.Account{}, endSpan(span, err)
	}
	defer done()

	now := s.now().UTC()
	var created domain.Account
	err = s.store.Atomic(ctx, func(tx port.AccountStore) error {
		_, err := tx.Accounts().GetByIdentifier(ctx, identifier)
		switch {
		case err == nil:
			return ErrAccountExists
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("lookup account: %w", err)
		}

		created, err = tx.Accounts().Upsert(ctx, domain.Account{
			Identifier:   identifier,
			PasswordHash: hash,
			Status:       domain.AccountStatusPristine,
			CreatedAt:    now,
		})
		if err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrAccountExists
			}
			return fmt.Errorf("store account: %w", err)
		}

		return recordAudit(ctx, tx, identifier, domain.ActionRegistration, domain.OutcomeSuccess, "", now)
	})
	if err != nil {
		return domain.Account{}, endSpan(span, errStorage("register account", err))
	}

	s.logger.Info("account registered", zap.String("identifier", logger.MaskIdentifier(identifier)))
	s.publishRegistered(ctx, created)

	return created.Sanitized(), nil
}

// Authenticate runs the staleness rules, the gate check and the password check
// for one login attempt and persists the outcome with its audit trail.
//
// Denied attempts return a *DeniedError and wrong passwords ErrInvalidCredentials;
// in both cases the result still carries the updated account.
func (s *AccountService) Authenticate(ctx context.Context, identifier, password string) (AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "AccountService.Authenticate")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return AuthResult{}, endSpan(span, newValidationError("identifier and password are required"))
	}

	ctx, done, err := enterGuard(ctx, s.locker, s.timeout, identifier)
	if err != nil {
		return AuthResult{}, endSpan(span, err)
	}
	defer done()

	now := s.now().UTC()
	var (
		result  AuthResult
		outcome error
	)
	err = s.store.Atomic(ctx, func(tx port.AccountStore) error {
		result, outcome = AuthResult{}, nil

		current, err := tx.Accounts().GetByIdentifier(ctx, identifier)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lookup account: %w", err)
		}
		acc := *current

		input := domain.RuleInput{Now: now}
		if s.rules.NeedsFailureHistory(acc) {
			dates, err := tx.Audit().FailureDates(ctx, identifier, s.rules.FailureWindowStart(now), s.rules.FlagWindowDays)
			if err != nil {
				return fmt.Errorf("load failure history: %w", err)
			}
			input.FailureDates = dates
		}

		evaluated, changed := s.rules.EvaluatePreLogin(acc, input)
		if changed {
			result.Transitions = append(result.Transitions, StatusTransition{From: acc.Status, To: evaluated.Status, Cause: string(evaluated.Status)})
			acc = evaluated
		}

		if domain.IsGated(acc.Status) {
			if changed {
				if acc, err = tx.Accounts().Upsert(ctx, acc); err != nil {
					return fmt.Errorf("store account: %w", err)
				}
			}
			result.Account = acc.Sanitized()
			outcome = &DeniedError{Status: acc.Status}
			return recordAudit(ctx, tx, identifier, domain.ActionLogin, domain.OutcomeFailure, "account "+string(acc.Status), now)
		}

		matched, err := s.hasher.Verify(password, acc.PasswordHash)
		if err != nil {
			return fmt.Errorf("verify password: %w", err)
		}

		previous := acc.Status
		auditOutcome := domain.OutcomeSuccess
		if matched {
			acc = s.rules.ApplyLoginSuccess(acc, now)
			if acc.Status != previous {
				result.Transitions = append(result.Transitions, StatusTransition{From: previous, To: acc.Status, Cause: CauseLogin})
			}
		} else {
			acc = s.rules.ApplyLoginFailure(acc, now)
			if acc.Status != previous {
				result.Transitions = append(result.Transitions, StatusTransition{From: previous, To: acc.Status, Cause: CauseBlocked})
			}
			auditOutcome = domain.OutcomeFailure
			outcome = ErrInvalidCredentials
		}

		if acc, err = tx.Accounts().Upsert(ctx, acc); err != nil {
			return fmt.Errorf("store account: %w", err)
		}
		result.Account = acc.Sanitized()
		return recordAudit(ctx, tx, identifier, domain.ActionLogin, auditOutcome, "", now)
	})
	if err != nil {
		s.observeLogin(err)
		if errors.Is(err, ErrAccountNotFound) {
			return AuthResult{}, endSpan(span, err)
		}
		return AuthResult{}, endSpan(span, errStorage("authenticate", err))
	}

	s.observeLogin(outcome)
	for _, transition := range result.Transitions {
		s.statusChanged(ctx, identifier, transition, now)
	}

	span.SetAttributes(attribute.String("account.status", string(result.Account.Status)))
	if outcome != nil {
		s.logger.Info("login rejected",
			zap.String("identifier", logger.MaskIdentifier(identifier)),
			zap.String("status", string(result.Account.Status)),
			zap.Int("login_attempts", result.Account.LoginAttempts),
			zap.Error(outcome),
		)
		return result, endSpan(span, outcome)
	}
	return result, nil
}

// Logout records a logout for an existing account; unknown identifiers are ignored.
func (s *AccountService) Logout(ctx context.Context, identifier string) error {
	ctx, span := s.tracer.Start(ctx, "AccountService.Logout")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	ctx, done, err := enterGuard(ctx, s.locker, s.timeout, identifier)
	if err != nil {
		return endSpan(span, err)
	}
	defer done()

	err = s.store.Atomic(ctx, func(tx port.AccountStore) error {
		if _, err := tx.Accounts().GetByIdentifier(ctx, identifier); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("lookup account: %w", err)
		}
		return recordAudit(ctx, tx, identifier, domain.ActionLogout, domain.OutcomeSuccess, "", s.now().UTC())
	})
	return endSpan(span, errStorage("logout", err))
}

func (s *AccountService) observeLogin(err error) {
	if s.metrics == nil {
		return
	}
	label := loginOutcomeSuccess
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidCredentials):
		label = loginOutcomeInvalidCredentials
	case errors.Is(err, ErrLoginDenied):
		label = loginOutcomeDenied
	case errors.Is(err, ErrAccountNotFound):
		label = loginOutcomeNotFound
	default:
		label = loginOutcomeError
	}
	s.metrics.ObserveLogin(label)
}

func (s *AccountService) statusChanged(ctx context.Context, identifier string, transition StatusTransition, at time.Time) {
	publishStatusChanged(ctx, s.events, s.metrics, s.logger, identifier, transition, at)
}

func (s *AccountService) publishRegistered(ctx context.Context, acc domain.Account) {
	if s.events == nil {
		return
	}
	event := domain.AccountRegisteredEvent{
		EventID:      uuid.NewString(),
		Identifier:   acc.Identifier,
		Status:       acc.Status,
		RegisteredAt: acc.CreatedAt,
	}
	if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
		s.logger.Warn("publish account registered event failed", zap.String("identifier", logger.MaskIdentifier(acc.Identifier)), zap.Error(err))
	}
}

func publishStatusChanged(ctx context.Context, events port.EventPublisher, metrics port.AccountMetrics, log *zap.Logger, identifier string, transition StatusTransition, at time.Time) {
	if metrics != nil {
		metrics.ObserveStatusTransition(transition.From, transition.To)
	}
	log.Info("account status changed",
		zap.String("identifier", logger.MaskIdentifier(identifier)),
		zap.String("from", string(transition.From)),
		zap.String("to", string(transition.To)),
		zap.String("cause", transition.Cause),
	)
	if events == nil {
		return
	}
	event := domain.AccountStatusChangedEvent{
		EventID:    uuid.NewString(),
		Identifier: identifier,
		From:       transition.From,
		To:         transition.To,
		Cause:      transition.Cause,
		ChangedAt:  at,
	}
	if err := events.PublishAccountStatusChanged(ctx, event); err != nil {
		log.Warn("publish status changed event failed", zap.String("identifier", logger.MaskIdentifier(identifier)), zap.Error(err))
	}
}

// enterGuard bounds ctx by timeout and takes the per-identifier lock under it.
// The returned function releases the lock and cancels the context.
func enterGuard(ctx context.Context, locker port.AccountLocker, timeout time.Duration, identifier string) (context.Context, func(), error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	unlock, err := locker.Lock(ctx, identifier)
	if err != nil {
		cancel()
		return ctx, func() {}, errStorage("acquire account lock", err)
	}
	return ctx, func() {
		unlock()
		cancel()
	}, nil
}

func recordAudit(ctx context.Context, tx port.AccountStore, subject string, action domain.ActionType, outcome domain.Outcome, detail string, at time.Time) error {
	entry := domain.AuditEntry{
		ActionType: action,
		Outcome:    outcome,
		OccurredAt: at,
	}
	if subject != "" {
		entry.SubjectIdentifier = &subject
	}
	if detail != "" {
		entry.Detail = &detail
	}
	if err := tx.Audit().Record(ctx, entry); err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
