package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type lease struct {
	token   string
	expires time.Time
}

// Memory is a Locker for a single process.
type Memory struct {
	mu    sync.Mutex
	held  map[string]lease
	nowFn func() time.Time
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]lease), nowFn: time.Now}
}

func (m *Memory) TryLock(_ context.Context, key string, ttl time.Duration) (Unlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	if l, ok := m.held[key]; ok && now.Before(l.expires) {
		return nil, ErrNotAcquired
	}
	token := uuid.NewString()
	m.held[key] = lease{token: token, expires: now.Add(ttl)}

	return func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if l, ok := m.held[key]; ok && l.token == token {
			delete(m.held, key)
		}
		return nil
	}, nil
}
