package security

import (
	"errors"
	"regexp"

	"github.com/arklim/credential-gate/internal/core/port"
)

var identifierPattern = regexp.MustCompile(`^[0-9]{6,8}$`)

// ErrInvalidIdentifier reports an identifier that is not 6 to 8 ASCII digits.
var ErrInvalidIdentifier = errors.New("identifier must be 6 to 8 digits")

// IdentifierFormat validates national-ID style account identifiers.
type IdentifierFormat struct{}

var _ port.IdentifierValidator = IdentifierFormat{}

// Validate returns ErrInvalidIdentifier unless identifier is 6 to 8 digits.
func (IdentifierFormat) Validate(identifier string) error {
	if !identifierPattern.MatchString(identifier) {
		return ErrInvalidIdentifier
	}
	return nil
}
