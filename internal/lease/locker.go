// Package lease provides time-bounded exclusive processing rights
// keyed by order identifier.
package lease

import (
	"context"
	"errors"
	"time"
)

// ErrLockTimeout is returned when a lease cannot be acquired within
// the bounded wait. The triggering event may be redelivered by the
// external event source.
var ErrLockTimeout = errors.New("lock_timeout")

// Locker grants single-attempt exclusive locks. Implementations:
// RedisLocker for horizontally scaled deployments, MemoryLocker for a
// single process.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

// Manager wraps a Locker with a bounded acquisition wait. Acquisition
// polls rather than blocks so worst-case latency under contention
// stays bounded.
type Manager struct {
	locker  Locker
	ttl     time.Duration
	waitMax time.Duration
	retry   time.Duration
}

func NewManager(locker Locker, ttl, waitMax time.Duration) *Manager {
	retry := waitMax / 20
	if retry < 10*time.Millisecond {
		retry = 10 * time.Millisecond
	}
	return &Manager{
		locker:  locker,
		ttl:     ttl,
		waitMax: waitMax,
		retry:   retry,
	}
}

// Acquire obtains the lease for key or fails with ErrLockTimeout
// after the bounded wait. The returned release func is safe to call
// once, after the critical section.
func (m *Manager) Acquire(ctx context.Context, key string) (func(), error) {
	deadline := time.Now().Add(m.waitMax)

	for {
		token, ok, err := m.locker.TryLock(ctx, key, m.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// Release on a fresh context: the caller's context may
				// already be canceled after the run.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = m.locker.Release(releaseCtx, key, token)
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.retry):
		}
	}
}
