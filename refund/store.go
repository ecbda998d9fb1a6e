package refund

import "sync"

// MemoryStore is the default Store. It keeps attempted keys for the lifetime
// of the process, which is enough for a single-instance merchant; a fleet
// would swap in a shared store behind the same interface.
type MemoryStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

// TryBegin implements Store.
func (s *MemoryStore) TryBegin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}
