package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arklim/credential-gate/internal/core/port"
)

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrLockTimeout is returned when the lock could not be acquired before the context ended.
var ErrLockTimeout = errors.New("account lock: acquisition timed out")

// LockConfig tunes the distributed account lock.
type LockConfig struct {
	KeyPrefix     string
	TTL           time.Duration
	RetryInterval time.Duration
}

// AccountLocker implements port.AccountLocker with SET NX PX.
type AccountLocker struct {
	client redis.UniversalClient
	cfg    LockConfig
	logger *zap.Logger
}

var _ port.AccountLocker = (*AccountLocker)(nil)

// NewAccountLocker constructs a Redis-backed per-identifier lock.
func NewAccountLocker(client redis.UniversalClient, cfg LockConfig, logger *zap.Logger) *AccountLocker {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "gate:lock"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountLocker{client: client, cfg: cfg, logger: logger}
}

// Lock retries SET NX until it wins or ctx is done.
func (l *AccountLocker) Lock(ctx context.Context, identifier string) (func(), error) {
	key := l.cfg.KeyPrefix + ":" + identifier
	token := uuid.NewString()

	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		acquired, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
			}
			return nil, fmt.Errorf("redis setnx: %w", err)
		}
		if acquired {
			return l.releaser(key, token), nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *AccountLocker) releaser(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, token) })
	}
}

func (l *AccountLocker) release(key, token string) {
	// release must run even when the request context is already cancelled
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.TTL)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		l.logger.Warn("release account lock failed", zap.String("key", key), zap.Error(err))
	}
}
