package port

import "context"

// AccountStore groups the repositories that must change together.
type AccountStore interface {
	Accounts() AccountRepository
	Audit() AuditRepository
	// Atomic runs fn in a single transaction; the store handed to fn shares it.
	// The transaction commits only when fn returns nil.
	Atomic(ctx context.Context, fn func(tx AccountStore) error) error
}
