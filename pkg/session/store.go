// Package session holds the result store shared by a runner, its templating
// engine and its step executors.
//
// A Store is not safe for concurrent use. Steps run one at a time, so the
// runner never needs to lock it.
package session

import "maps"

// Store maps step names and aliases to the values their steps produced.
type Store struct {
	values map[string]any
}

// New returns an empty store.
func New() *Store {
	return &Store{values: make(map[string]any)}
}

// Get returns the value stored under key and whether the key is present.
// A present key may hold a nil value.
func (s *Store) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Set adds or overwrites an entry.
func (s *Store) Set(key string, value any) {
	s.values[key] = value
}

// Len returns the number of entries.
func (s *Store) Len() int { return len(s.values) }

// Snapshot returns a shallow copy of the entries.
func (s *Store) Snapshot() map[string]any {
	return maps.Clone(s.values)
}

// Map exposes the live backing map. Writes to it are writes to the store;
// script sandboxes bind it directly.
func (s *Store) Map() map[string]any {
	return s.values
}

// Clear removes every entry. The backing map keeps its identity, so anything
// bound to Map observes the reset.
func (s *Store) Clear() {
	clear(s.values)
}
