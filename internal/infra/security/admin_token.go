package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

const adminTokenIssuer = "credential-gate"

// ErrInvalidAdminToken is returned for tokens that fail signature, expiry or claim checks.
var ErrInvalidAdminToken = errors.New("admin token: invalid")

// AdminClaims is the session assertion handed to the request layer after admin login.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminTokenManager signs and verifies HS256 admin session tokens.
type AdminTokenManager struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time
}

// NewAdminTokenManager constructs a manager; subject is the reserved administrative identifier.
func NewAdminTokenManager(secret []byte, subject string, ttl time.Duration) (*AdminTokenManager, error) {
	if len(secret) < 32 {
		return nil, errors.New("admin token: secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("admin token: ttl must be positive")
	}
	return &AdminTokenManager{secret: secret, subject: subject, ttl: ttl, now: time.Now}, nil
}

// Issue signs a fresh token and returns it with its expiry.
func (m *AdminTokenManager) Issue() (string, time.Time, error) {
	issuedAt := m.now().UTC()
	expiresAt := issuedAt.Add(m.ttl)

	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    adminTokenIssuer,
			Subject:   m.subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign admin token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates token and returns its claims.
func (m *AdminTokenManager) Parse(token string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(adminTokenIssuer),
		jwt.WithSubject(m.subject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAdminToken, err)
	}
	if !parsed.Valid || claims.Role != "admin" {
		return nil, ErrInvalidAdminToken
	}
	return claims, nil
}
