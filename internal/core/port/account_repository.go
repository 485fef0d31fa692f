package port

import (
	"context"

	"github.com/arklim/credential-gate/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	// GetByIdentifier returns repository.ErrNotFound when no account matches.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	// Upsert inserts the account on first save and assigns its ID, otherwise it
	// updates every mutable field matched by identifier.
	Upsert(ctx context.Context, account domain.Account) (domain.Account, error)
	// List returns accounts newest-created first.
	List(ctx context.Context) ([]domain.Account, error)
	Count(ctx context.Context) (int, error)
}
