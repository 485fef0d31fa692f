package security

import (
	"github.com/arklim/credential-gate/internal/core/port"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 12
	// SpecialCharacters is the set a password must draw at least one character from.
	SpecialCharacters = `!@#$%^&*(),.?":{}|<>`
)

// PasswordPolicy adapts a PasswordValidator to port.PasswordPolicyValidator.
type PasswordPolicy struct {
	validator *PasswordValidator
}

var _ port.PasswordPolicyValidator = (*PasswordPolicy)(nil)

// DefaultPasswordValidator enforces 8 to 12 characters, an uppercase letter and a
// special character. A positive minStrength additionally requires that zxcvbn score.
func DefaultPasswordValidator(minStrength int) *PasswordValidator {
	return NewPasswordValidator(
		LengthRangeRule(minPasswordLength, maxPasswordLength),
		RequireUppercaseRule(),
		RequireSpecialCharacterRule(SpecialCharacters),
		RequirePasswordStrengthRule(minStrength),
	)
}

// NewPasswordPolicy wraps validator; nil falls back to DefaultPasswordValidator(0).
func NewPasswordPolicy(validator *PasswordValidator) *PasswordPolicy {
	if validator == nil {
		validator = DefaultPasswordValidator(0)
	}
	return &PasswordPolicy{validator: validator}
}

// Violations returns the message of every rule the password breaks.
func (p *PasswordPolicy) Violations(password string) []string {
	errs := p.validator.ValidateAll(password)
	if len(errs) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(errs))
	for _, err := range errs {
		reasons = append(reasons, err.Error())
	}
	return reasons
}
