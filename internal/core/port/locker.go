package port

import "context"

// AccountLocker serialises read-modify-write sequences per identifier.
type AccountLocker interface {
	// Lock blocks until the identifier is held or ctx is done. The returned
	// function releases the lock and is safe to call once.
	Lock(ctx context.Context, identifier string) (func(), error)
}
