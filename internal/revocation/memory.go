package revocation

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local deny-list. Entries live until the token they
// name would have expired.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]time.Time
	now     func() time.Time
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]time.Time),
		now:     now,
	}
}

func (m *Memory) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tokenID] = expiresAt
	m.sweep()
	return nil
}

func (m *Memory) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	exp, ok := m.entries[tokenID]
	return ok && m.now().Before(exp), nil
}

// sweep drops entries whose tokens have expired anyway. Called with mu held.
func (m *Memory) sweep() {
	now := m.now()
	for k, exp := range m.entries {
		if !now.Before(exp) {
			delete(m.entries, k)
		}
	}
}
