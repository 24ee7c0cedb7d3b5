package authclient

import "sync"

// TokenStorage holds the access token for one browsing context. It is
// deliberately tab-scoped: tokens never cross contexts, only broadcast
// events do.
type TokenStorage interface {
	Token() string
	SetToken(token string)
	Clear()
}

// MemoryTokenStorage is the default TokenStorage.
type MemoryTokenStorage struct {
	mu    sync.RWMutex
	token string
}

func NewMemoryTokenStorage() *MemoryTokenStorage { return &MemoryTokenStorage{} }

func (s *MemoryTokenStorage) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemoryTokenStorage) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemoryTokenStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}
