package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// ErrLockBusy indicates another worker holds the lock.
var ErrLockBusy = Classify("lock held by another request", ErrConflict)

// OrderLockKey builds redis keys for per-order critical sections.
func OrderLockKey(orderID int64) string {
	return fmt.Sprintf("resort:order:%d:lock", orderID)
}

// Locker obtains short-lived distributed locks backed by redis.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker wraps a redislock client. A nil client yields a nil Locker, which
// grants every lock.
func NewLocker(client *redislock.Client, ttl time.Duration) *Locker {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire obtains key and returns its release func.
func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return nil, fmt.Errorf("%w: %s", ErrLockBusy, key)
		}
		return nil, err
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}
