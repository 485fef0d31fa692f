package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/credential-gate/internal/core/domain"
	"github.com/arklim/credential-gate/internal/core/port"
	"github.com/arklim/credential-gate/internal/infra/lock"
	"github.com/arklim/credential-gate/internal/infra/logger"
	"github.com/arklim/credential-gate/internal/infra/security"
	"github.com/arklim/credential-gate/internal/repository"
)

// DefaultAdminIdentifier is the reserved identifier used when none is configured.
const DefaultAdminIdentifier = "admin"

// AdminServiceConfig carries the administrative credential. PasswordHash is an
// encoded Argon2id hash; plaintext secrets are hashed before they get here.
type AdminServiceConfig struct {
	Identifier       string
	PasswordHash     string
	OperationTimeout time.Duration
}

// AdminSession is the assertion handed to the request layer after a successful admin login.
type AdminSession struct {
	Subject   string
	Token     string
	ExpiresAt time.Time
}

// AdminService implements the privileged read and override operations.
type AdminService struct {
	store      port.AccountStore
	locker     port.AccountLocker
	hasher     port.PasswordHasher
	policy     port.PasswordPolicyValidator
	tokens     *security.AdminTokenManager
	events     port.EventPublisher
	metrics    port.AccountMetrics
	identifier string
	secretHash string
	timeout    time.Duration
	tracer     trace.Tracer
	logger     *zap.Logger
	now        func() time.Time
}

// NewAdminService constructs an AdminService.
func NewAdminService(store port.AccountStore, locker port.AccountLocker, hasher port.PasswordHasher, policy port.PasswordPolicyValidator, tokens *security.AdminTokenManager, events port.EventPublisher, metrics port.AccountMetrics, cfg AdminServiceConfig, log *zap.Logger) *AdminService {
	if locker == nil {
		locker = lock.NewKeyedLocker()
	}
	if policy == nil {
		policy = security.NewPasswordPolicy(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	identifier := strings.TrimSpace(cfg.Identifier)
	if identifier == "" {
		identifier = DefaultAdminIdentifier
	}
	timeout := cfg.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	return &AdminService{
		store:      store,
		locker:     locker,
		hasher:     hasher,
		policy:     policy,
		tokens:     tokens,
		events:     events,
		metrics:    metrics,
		identifier: identifier,
		secretHash: cfg.PasswordHash,
		timeout:    timeout,
		tracer:     otel.Tracer(tracerName),
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AdminService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Identifier returns the reserved administrative identifier.
func (s *AdminService) Identifier() string {
	return s.identifier
}

// Login verifies the administrative secret and issues a session token. Both
// outcomes are audited under the reserved identifier.
func (s *AdminService) Login(ctx context.Context, secret string) (AdminSession, error) {
	ctx, span := s.tracer.Start(ctx, "AdminService.Login")
	defer span.End()

	matched := false
	if secret != "" && s.secretHash != "" {
		ok, err := s.hasher.Verify(secret, s.secretHash)
		if err != nil {
			return AdminSession{}, endSpan(span, fmt.Errorf("verify admin secret: %w", err))
		}
		matched = ok
	}

	outcome := domain.OutcomeFailure
	if matched {
		outcome = domain.OutcomeSuccess
	}
	if err := s.auditAdminLogin(ctx, outcome); err != nil {
		return AdminSession{}, endSpan(span, err)
	}

	if !matched {
		s.logger.Warn("admin login rejected")
		return AdminSession{}, endSpan(span, ErrAdminDenied)
	}

	token, expiresAt, err := s.tokens.Issue()
	if err != nil {
		return AdminSession{}, endSpan(span, err)
	}
	s.logger.Info("admin login succeeded", zap.Time("expires_at", expiresAt))
	return AdminSession{Subject: s.identifier, Token: token, ExpiresAt: expiresAt}, nil
}

// ParseToken validates an admin session token for the request layer.
func (s *AdminService) ParseToken(token string) (*security.AdminClaims, error) {
	claims, err := s.tokens.Parse(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAdminDenied, err)
	}
	return claims, nil
}

// ListUsers returns every account newest-created first, without password hashes.
func (s *AdminService) ListUsers(ctx context.Context) ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	accounts, err := s.store.Accounts().List(ctx)
	if err != nil {
		return nil, errStorage("list accounts", err)
	}
	for i := range accounts {
		accounts[i] = accounts[i].Sanitized()
	}
	return accounts, nil
}

// ListActivities returns the audit log newest-first.
func (s *AdminService) ListActivities(ctx context.Context) ([]domain.AuditEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	events, err := s.store.Audit().List(ctx)
	if err != nil {
		return nil, errStorage("list audit events", err)
	}
	return events, nil
}

// Stats counts accounts and audit events.
func (s *AdminService) Stats(ctx context.Context) (domain.Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	users, err := s.store.Accounts().Count(ctx)
	if err != nil {
		return domain.Stats{}, errStorage("count accounts", err)
	}
	activities, err := s.store.Audit().Count(ctx)
	if err != nil {
		return domain.Stats{}, errStorage("count audit events", err)
	}
	return domain.Stats{TotalUsers: users, TotalActivities: activities}, nil
}

// ChangeStatus sets an account status directly through domain.OverrideStatus,
// bypassing every automatic rule. The override is audited under the reserved identifier.
func (s *AdminService) ChangeStatus(ctx context.Context, identifier, newStatus string) (domain.Account, error) {
	ctx, span := s.tracer.Start(ctx, "AdminService.ChangeStatus")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == s.identifier {
		return domain.Account{}, endSpan(span, ErrReservedAccount)
	}
	if identifier == "" {
		return domain.Account{}, endSpan(span, newValidationError("identifier is required"))
	}
	status, ok := domain.ParseAccountStatus(newStatus)
	if !ok {
		return domain.Account{}, endSpan(span, newValidationError(fmt.Sprintf("unknown status %q", newStatus)))
	}

	ctx, done, err := enterGuard(ctx, s.locker, s.timeout, identifier)
	if err != nil {
		return domain.Account{}, endSpan(span, err)
	}
	defer done()

	now := s.now().UTC()
	var (
		updated  domain.Account
		previous domain.AccountStatus
	)
	err = s.store.Atomic(ctx, func(tx port.AccountStore) error {
		current, err := tx.Accounts().GetByIdentifier(ctx, identifier)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lookup account: %w", err)
		}
		if current.Status == status {
			return ErrStatusUnchanged
		}

		previous = current.Status
		updated, err = tx.Accounts().Upsert(ctx, domain.OverrideStatus(*current, status))
		if err != nil {
			return fmt.Errorf("store account: %w", err)
		}
		detail := fmt.Sprintf("account %s -> %s", identifier, status)
		return recordAudit(ctx, tx, s.identifier, domain.ActionStatusChange, domain.OutcomeAdminOK, detail, now)
	})
	if err != nil {
		return domain.Account{}, endSpan(span, errStorage("change status", err))
	}

	publishStatusChanged(ctx, s.events, s.metrics, s.logger, identifier, StatusTransition{From: previous, To: status, Cause: CauseAdmin}, now)
	return updated.Sanitized(), nil
}

// ChangePassword replaces an account password after policy validation.
func (s *AdminService) ChangePassword(ctx context.Context, identifier, newPassword string) error {
	ctx, span := s.tracer.Start(ctx, "AdminService.ChangePassword")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return endSpan(span, newValidationError("identifier is required"))
	}
	if reasons := s.policy.Violations(newPassword); len(reasons) > 0 {
		return endSpan(span, newValidationError(reasons...))
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return endSpan(span, fmt.Errorf("hash password: %w", err))
	}

	ctx, done, err := enterGuard(ctx, s.locker, s.timeout, identifier)
	if err != nil {
		return endSpan(span, err)
	}
	defer done()

	now := s.now().UTC()
	err = s.store.Atomic(ctx, func(tx port.AccountStore) error {
		current, err := tx.Accounts().GetByIdentifier(ctx, identifier)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrAccountNotFound
			}
			return fmt.Errorf("lookup account: %w", err)
		}

		acc := *current
		acc.PasswordHash = hash
		if _, err := tx.Accounts().Upsert(ctx, acc); err != nil {
			return fmt.Errorf("store account: %w", err)
		}
		return recordAudit(ctx, tx, s.identifier, domain.ActionPasswordChange, domain.OutcomeAdminOK, "account "+identifier, now)
	})
	if err != nil {
		return endSpan(span, errStorage("change password", err))
	}

	s.logger.Info("account password changed by admin", zap.String("identifier", logger.MaskIdentifier(identifier)))
	if s.events != nil {
		event := domain.AccountPasswordChangedEvent{
			EventID:    uuid.NewString(),
			Identifier: identifier,
			ChangedBy:  s.identifier,
			ChangedAt:  now,
		}
		if err := s.events.PublishAccountPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed event failed", zap.String("identifier", logger.MaskIdentifier(identifier)), zap.Error(err))
		}
	}
	return nil
}

func (s *AdminService) auditAdminLogin(ctx context.Context, outcome domain.Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	return errStorage("record admin audit", s.store.Atomic(ctx, func(tx port.AccountStore) error {
		return recordAudit(ctx, tx, s.identifier, domain.ActionAdminLogin, outcome, "", s.now().UTC())
	}))
}
