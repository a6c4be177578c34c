package macro

import "sync"

// Store holds the current macro library under single-writer discipline:
// reloads replace the whole library atomically while lookups read the
// snapshot current at call time.
type Store struct {
	mu  sync.RWMutex
	lib Library
}

// NewStore creates a store with an initial library. A nil library is
// treated as empty.
func NewStore(lib Library) *Store {
	if lib == nil {
		lib = make(Library)
	}
	return &Store{lib: lib}
}

// Get returns the macro with the given id.
func (s *Store) Get(id string) (Macro, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.lib[id]
	return m, ok
}

// Replace swaps in a new library.
func (s *Store) Replace(lib Library) {
	if lib == nil {
		lib = make(Library)
	}
	s.mu.Lock()
	s.lib = lib
	s.mu.Unlock()
}

// Len returns the number of macros.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lib)
}
