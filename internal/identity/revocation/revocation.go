// Package revocation tracks revoked session IDs until the session would
// have expired anyway.
package revocation

import (
	"context"
	"sync"
	"time"
)

// List is a revocation store keyed by session ID.
type List interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// InMemory keeps revocations in a map. Expired entries are ignored on read
// and removed by Sweep.
type InMemory struct {
	mu      sync.RWMutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *InMemory) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = m.now().Add(ttl)
	return nil
}

func (m *InMemory) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expiry, ok := m.revoked[sessionID]
	if !ok {
		return false, nil
	}
	return m.now().Before(expiry), nil
}

// Sweep drops expired entries and returns how many were removed.
func (m *InMemory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for sessionID, expiry := range m.revoked {
		if !now.Before(expiry) {
			delete(m.revoked, sessionID)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (m *InMemory) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
