// Package inventory defines the read-only resource contract the scheduler
// checks feasibility against, plus an in-memory store that implements it.
package inventory

import (
	"errors"
	"sort"
	"sync"
)

// ErrInsufficient is returned when a removal exceeds what is held.
var ErrInsufficient = errors.New("insufficient items")

// Source answers stock questions. The scheduler never mutates it.
type Source interface {
	// Storage returns the shared base storage count for item.
	Storage(item string) int
	// Held returns how many of item a character carries.
	Held(memberID, item string) int
	// HeldTotal returns the total number of units a character carries.
	HeldTotal(memberID string) int
}

// Store is a mutex-guarded in-memory Source with write operations for the
// decision layer and persistence.
type Store struct {
	mu      sync.RWMutex
	storage map[string]int
	members map[string]map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		storage: make(map[string]int),
		members: make(map[string]map[string]int),
	}
}

// Storage implements Source.
func (s *Store) Storage(item string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.storage[item]
}

// Held implements Source.
func (s *Store) Held(memberID, item string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.members[memberID][item]
}

// HeldTotal implements Source.
func (s *Store) HeldTotal(memberID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.members[memberID] {
		total += n
	}
	return total
}

// AddStorage adds qty of item to base storage. Negative quantities are
// ignored.
func (s *Store) AddStorage(item string, qty int) {
	if qty <= 0 {
		return
	}
	s.mu.Lock()
	s.storage[item] += qty
	s.mu.Unlock()
}

// TakeStorage removes qty of item from base storage.
func (s *Store) TakeStorage(item string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storage[item] < qty {
		return ErrInsufficient
	}
	s.storage[item] -= qty
	if s.storage[item] == 0 {
		delete(s.storage, item)
	}
	return nil
}

// Give adds qty of item to a character's pack.
func (s *Store) Give(memberID, item string, qty int) {
	if qty <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	pack := s.members[memberID]
	if pack == nil {
		pack = make(map[string]int)
		s.members[memberID] = pack
	}
	pack[item] += qty
}

// Unload moves everything a character carries into base storage and returns
// the number of units moved.
func (s *Store) Unload(memberID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	moved := 0
	for item, n := range s.members[memberID] {
		s.storage[item] += n
		moved += n
	}
	delete(s.members, memberID)
	return moved
}

// StorageSnapshot returns a copy of base storage.
func (s *Store) StorageSnapshot() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneCounts(s.storage)
}

// MemberSnapshot returns a copy of every character's pack.
func (s *Store) MemberSnapshot() map[string]map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]map[string]int, len(s.members))
	for id, pack := range s.members {
		out[id] = cloneCounts(pack)
	}
	return out
}

// Items returns the sorted item ids present anywhere in the store.
func (s *Store) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]bool)
	for item := range s.storage {
		seen[item] = true
	}
	for _, pack := range s.members {
		for item := range pack {
			seen[item] = true
		}
	}
	items := make([]string, 0, len(seen))
	for item := range seen {
		items = append(items, item)
	}
	sort.Strings(items)
	return items
}

// Replace swaps the entire contents, used when loading saved state.
func (s *Store) Replace(storage map[string]int, members map[string]map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storage = cloneCounts(storage)
	s.members = make(map[string]map[string]int, len(members))
	for id, pack := range members {
		s.members[id] = cloneCounts(pack)
	}
}

func cloneCounts(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		if v != 0 {
			out[k] = v
		}
	}
	return out
}
