package engine

import (
	"sort"
	"sync"

	"github.com/jmylchreest/deckd/internal/model"
)

// Store holds the live items. Its lock is held only for list mutation and
// selection, never across rendering, device I/O or a producer's wait.
type Store struct {
	mu      sync.Mutex
	items   []*model.Item
	seq     uint64
	current *model.Item
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Add inserts it and returns the same-owner items it supersedes. The caller
// resolves the returned items; they are no longer in the store.
func (s *Store) Add(it *model.Item) []*model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(it)
}

func (s *Store) addLocked(it *model.Item) []*model.Item {
	s.seq++
	it.Seq = s.seq

	var removed []*model.Item
	if it.Owner != "" {
		kept := s.items[:0]
		for _, old := range s.items {
			if old.Owner == it.Owner && it.Kind.Supersedes(old.Kind) {
				removed = append(removed, old)
				continue
			}
			kept = append(kept, old)
		}
		for i := len(kept); i < len(s.items); i++ {
			s.items[i] = nil
		}
		s.items = kept
	}
	s.items = append(s.items, it)
	return removed
}

// Remove deletes the item with id and reports whether it was live.
func (s *Store) Remove(id string) (*model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(id)
}

func (s *Store) removeLocked(id string) (*model.Item, bool) {
	for i, it := range s.items {
		if it.ID == id {
			copy(s.items[i:], s.items[i+1:])
			s.items[len(s.items)-1] = nil
			s.items = s.items[:len(s.items)-1]
			return it, true
		}
	}
	return nil, false
}

// Get returns the live item with id.
func (s *Store) Get(id string) (*model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *Store) getLocked(id string) (*model.Item, bool) {
	for _, it := range s.items {
		if it.ID == id {
			return it, true
		}
	}
	return nil, false
}

// Len returns the number of live items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Snapshot returns the live items ordered by selection rank, best first.
func (s *Store) Snapshot() []model.Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	ranked := make([]*model.Item, len(s.items))
	copy(ranked, s.items)
	sortRanked(ranked)

	out := make([]model.Info, len(ranked))
	for i, it := range ranked {
		out[i] = it.Info(s.current != nil && s.current.ID == it.ID)
	}
	return out
}

// Clear removes every item and returns them.
func (s *Store) Clear() []*model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items
	s.items = nil
	s.current = nil
	return out
}

// Reselect recomputes the selection and reports whether its identity changed.
func (s *Store) Reselect() (*model.Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reselectLocked()
}

func (s *Store) reselectLocked() (*model.Item, bool) {
	next := Select(s.items)
	changed := identity(next) != identity(s.current)
	s.current = next
	return next, changed
}

// Current returns the last selected item without recomputing.
func (s *Store) Current() *model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func identity(it *model.Item) string {
	if it == nil {
		return ""
	}
	return it.ID
}

// Select returns the item with the highest priority, newest first on ties.
// It returns nil for an empty slice.
func Select(items []*model.Item) *model.Item {
	var best *model.Item
	for _, it := range items {
		if best == nil || outranks(it, best) {
			best = it
		}
	}
	return best
}

func outranks(a, b *model.Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Seq > b.Seq
}

func sortRanked(items []*model.Item) {
	sort.Slice(items, func(i, j int) bool {
		return outranks(items[i], items[j])
	})
}
