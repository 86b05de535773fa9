package credentials

import (
	"sync"
	"time"
)

// MemoryStore keeps the token in memory. Used by tests and by callers that
// want a session without touching the filesystem.
type MemoryStore struct {
	mu    sync.Mutex
	token *Token
	now   Clock
}

// NewMemoryStore returns an empty in-memory store. A nil clock means time.Now.
func NewMemoryStore(now Clock) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{now: now}
}

func (m *MemoryStore) Path() string {
	return "memory"
}

func (m *MemoryStore) Load() (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == nil || !m.token.ValidAt(m.now()) {
		return nil, ErrNoCredential
	}
	tok := *m.token
	return &tok, nil
}

func (m *MemoryStore) Save(token string, ttl time.Duration) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = newToken(token, ttl, m.now())
	tok := *m.token
	return &tok, nil
}
