package port

// PasswordPolicyValidator enforces password policy requirements.
type PasswordPolicyValidator interface {
	// Violations returns a human-readable reason for every rule the password breaks.
	Violations(password string) []string
}

// IdentifierValidator checks the format of account identifiers.
type IdentifierValidator interface {
	Validate(identifier string) error
}

// Argon2Params captures tunable parameters for the Argon2id hashing algorithm.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}
