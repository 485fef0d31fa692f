package lock

import (
	"context"
	"sync"

	"github.com/arklim/credential-gate/internal/core/port"
)

type keyedEntry struct {
	sem  chan struct{}
	refs int
}

// KeyedLocker is an in-process port.AccountLocker holding one mutex per identifier.
// Entries are dropped once nobody holds or waits for them.
type KeyedLocker struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

var _ port.AccountLocker = (*KeyedLocker)(nil)

// NewKeyedLocker constructs an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{entries: make(map[string]*keyedEntry)}
}

// Lock waits for identifier to become free or for ctx to end.
func (l *KeyedLocker) Lock(ctx context.Context, identifier string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[identifier]
	if !ok {
		entry = &keyedEntry{sem: make(chan struct{}, 1)}
		l.entries[identifier] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.drop(identifier, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.drop(identifier, entry)
		})
	}, nil
}

func (l *KeyedLocker) drop(identifier string, entry *keyedEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, identifier)
	}
}

func (l *KeyedLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
