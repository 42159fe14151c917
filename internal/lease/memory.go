package lease

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is a per-key lock arena for single-process
// deployments. Expired holders are evicted on the next attempt, so a
// crashed run cannot wedge its order forever.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryEntry
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]memoryEntry)}
}

func (l *MemoryLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, held := l.locks[key]; held && now.Before(entry.expiresAt) {
		return "", false, nil
	}

	token := uuid.NewString()
	l.locks[key] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *MemoryLocker) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, held := l.locks[key]; held && entry.token == token {
		delete(l.locks, key)
	}
	return nil
}
