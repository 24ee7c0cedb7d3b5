package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
// Expiry is lazy: records are dropped when read past their deadline.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]memoryRecord
}

type memoryRecord struct {
	rec       Record
	expiresAt time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]memoryRecord)}
}

func (m *MemoryStore) Create(ctx context.Context, sessionID string, rec Record, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.recs[sessionID] = memoryRecord{rec: rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	m.mu.RLock()
	mr, ok := m.recs[sessionID]
	m.mu.RUnlock()

	if !ok {
		return Record{}, ErrSessionNotFound
	}
	if !mr.expiresAt.After(time.Now()) {
		m.mu.Lock()
		delete(m.recs, sessionID)
		m.mu.Unlock()
		return Record{}, ErrSessionNotFound
	}

	out := mr.rec
	out.ExpiresAt = mr.expiresAt
	return out, nil
}

func (m *MemoryStore) Touch(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	mr, ok := m.recs[sessionID]
	if !ok || !mr.expiresAt.After(time.Now()) {
		delete(m.recs, sessionID)
		return ErrSessionNotFound
	}

	mr.expiresAt = time.Now().Add(ttl)
	m.recs[sessionID] = mr
	return nil
}

func (m *MemoryStore) Destroy(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.recs, sessionID)
	return nil
}

// Expire force-expires a record (test helper).
func (m *MemoryStore) Expire(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mr, ok := m.recs[sessionID]; ok {
		mr.expiresAt = time.Now().Add(-time.Second)
		m.recs[sessionID] = mr
	}
}
