package engine

import (
	"sync"

	"github.com/google/uuid"
)

// StagingStore holds line items the operator is still composing. It is
// terminal-local and ephemeral: nothing in it is visible to the kitchen,
// bills, or other terminals until committed. Operations never fail;
// callers validate item shape before Add.
type StagingStore struct {
	mu    sync.Mutex
	items []StagingItem
}

func NewStagingStore() *StagingStore {
	return &StagingStore{}
}

// Add appends an item, assigning a local id when missing.
func (s *StagingStore) Add(item StagingItem) {
	item.EnsureLocalID()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
}

// Remove drops the item with the given local id. Unknown ids are ignored.
func (s *StagingStore) Remove(localID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0]
	for _, it := range s.items {
		if it.LocalID != localID {
			kept = append(kept, it)
		}
	}
	s.items = kept
}

// Clear empties the store.
func (s *StagingStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// List returns a snapshot copy in insertion order. The commit flow takes
// this snapshot once and then issues commands from it, so items added
// while a commit is in flight land in the store untouched instead of
// racing with in-flight commands.
func (s *StagingStore) List() []StagingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StagingItem, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of staged items.
func (s *StagingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
