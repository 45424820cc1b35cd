package session

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	s       *Session
	expires time.Time
}

// MemoryStore keeps sessions in a map guarded by one mutex. The lock is held
// only for the map access itself.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]memEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an in-process store. ttl <= 0 keeps entries until removed.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[s.ChatID] = m.entry(s.Clone())
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, chatID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live(chatID)
	if !ok {
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Remove(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, chatID)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, chatID int64, fn func(*Session) (*Session, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, _ := m.live(chatID)
	next, err := fn(cur.Clone())
	if err != nil {
		return err
	}
	if next == nil {
		delete(m.entries, chatID)
		return nil
	}
	m.entries[chatID] = m.entry(next.Clone())
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// live must be called with mu held.
func (m *MemoryStore) live(chatID int64) (*Session, bool) {
	e, ok := m.entries[chatID]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && m.now().After(e.expires) {
		delete(m.entries, chatID)
		return nil, false
	}
	return e.s, true
}

func (m *MemoryStore) entry(s *Session) memEntry {
	e := memEntry{s: s}
	if m.ttl > 0 {
		e.expires = m.now().Add(m.ttl)
	}
	return e
}
