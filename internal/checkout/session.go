package checkout

import (
	"sync"
)

// StorageKey is where the checkout snapshot lives in the session store.
const StorageKey = "cabin-checkout-state"

// SessionStore is storage scoped to one guest session. Load reports false
// when nothing is stored under key.
type SessionStore interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, bool, error)
	Delete(key string) error
}

type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Load(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

var _ SessionStore = (*MemoryStore)(nil)
