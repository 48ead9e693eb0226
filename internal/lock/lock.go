// Package lock serialises check-then-act sections across requests and replicas.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotAcquired is returned when the key is held by someone else.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. Releasing after the TTL lapsed is a no-op.
type Unlock func(ctx context.Context) error

// Locker hands out short leases on string keys.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

const retryInterval = 25 * time.Millisecond

// Acquire retries TryLock until it succeeds, wait elapses or ctx is done.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (Unlock, error) {
	deadline := time.Now().Add(wait)
	for {
		unlock, err := l.TryLock(ctx, key, ttl)
		if !errors.Is(err, ErrNotAcquired) {
			return unlock, err
		}
		if time.Now().Add(retryInterval).After(deadline) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
