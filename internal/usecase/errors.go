package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arklim/credential-gate/internal/core/domain"
)

var (
	// ErrValidation marks rejected input; the concrete error is a *ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrAccountNotFound indicates no account matches the identifier.
	ErrAccountNotFound = errors.New("account not found")
	// ErrLoginDenied marks status-gated rejections; the concrete error is a *DeniedError.
	ErrLoginDenied = errors.New("login denied")
	// ErrInvalidCredentials indicates the password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrConflict is the parent of every state conflict.
	ErrConflict = errors.New("conflict")
	// ErrAccountExists indicates the identifier is already registered.
	ErrAccountExists = fmt.Errorf("%w: account already exists", ErrConflict)
	// ErrStatusUnchanged indicates the requested status equals the current one.
	ErrStatusUnchanged = fmt.Errorf("%w: current and new status are identical", ErrConflict)
	// ErrReservedAccount indicates an attempt to modify the administrative account.
	ErrReservedAccount = fmt.Errorf("%w: the administrative account cannot be modified", ErrConflict)
	// ErrStorage wraps persistence failures and timeouts.
	ErrStorage = errors.New("storage unavailable")
	// ErrAdminDenied indicates a wrong administrative secret or an invalid admin token.
	ErrAdminDenied = errors.New("admin access denied")
)

// ValidationError lists every rule the input broke.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Reasons, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func newValidationError(reasons ...string) *ValidationError {
	return &ValidationError{Reasons: reasons}
}

// DeniedError reports the status that gated a login attempt.
type DeniedError struct {
	Status domain.AccountStatus
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: account %s", ErrLoginDenied.Error(), e.Status)
}

func (e *DeniedError) Unwrap() error {
	return ErrLoginDenied
}

// errStorage wraps err as ErrStorage unless it already carries a service error.
func errStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	if isServiceError(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: operation timed out: %w", op, ErrStorage, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

func isServiceError(err error) bool {
	for _, target := range []error{ErrValidation, ErrAccountNotFound, ErrLoginDenied, ErrInvalidCredentials, ErrConflict, ErrStorage, ErrAdminDenied} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
