package session

import (
	"context"
	"sync"
	"time"
)

// Verify at compile time that MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

type memoryItem struct {
	session *Session
	expires time.Time
}

// MemoryStore keeps sessions in process memory. Entries expire ttl after
// their last save. State is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryStore creates a store whose entries live for ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memoryItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns a copy of the stored session.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	item, ok := m.items[id]
	m.mu.RUnlock()

	if !ok || m.now().After(item.expires) {
		return nil, ErrNotFound
	}
	return item.session.Clone(), nil
}

// Save stores a copy of s and refreshes its expiry.
func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	m.mu.Lock()
	m.items[s.ID] = memoryItem{
		session: s.Clone(),
		expires: m.now().Add(m.ttl),
	}
	m.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// Cleanup drops expired sessions and returns how many were removed.
func (m *MemoryStore) Cleanup() int {
	now := m.now()
	removed := 0

	m.mu.Lock()
	for id, item := range m.items {
		if now.After(item.expires) {
			delete(m.items, id)
			removed++
		}
	}
	m.mu.Unlock()

	return removed
}

// SweepFunc receives the result of each periodic cleanup.
type SweepFunc func(removed, remaining int)

// Run calls Cleanup every interval until ctx is done. report, if set, is
// called after every sweep.
func (m *MemoryStore) Run(ctx context.Context, interval time.Duration, report SweepFunc) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed := m.Cleanup()
			if report != nil {
				report(removed, m.Len())
			}
		}
	}
}
