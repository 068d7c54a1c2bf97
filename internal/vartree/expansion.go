package vartree

import (
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// ExpansionState is the set of node ids the user asked to expand. Absence
// means collapsed. It is decoupled from fetch completion: a node can be
// marked expanded before it has ever been fetched, and entries for ids no
// longer reachable are harmless until pruned.
//
// Ids are interned to dense uint32s and membership kept in a roaring
// bitmap. Pure state; mutating it never triggers a fetch.
type ExpansionState struct {
	mu       sync.RWMutex
	expanded *roaring.Bitmap
	ids      map[string]uint32 // node id → internal bitmap ID
	names    []string          // reverse: uint32 → node id
}

func NewExpansionState() *ExpansionState {
	return &ExpansionState{
		expanded: roaring.New(),
		ids:      make(map[string]uint32),
	}
}

// intern assigns a stable internal ID. Must be called with s.mu held.
func (s *ExpansionState) intern(id string) uint32 {
	if n, ok := s.ids[id]; ok {
		return n
	}
	n := uint32(len(s.names))
	s.ids[id] = n
	s.names = append(s.names, id)
	return n
}

// SetExpanded records expansion intent for id.
func (s *ExpansionState) SetExpanded(id string, expanded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.intern(id)
	if expanded {
		s.expanded.Add(n)
	} else {
		s.expanded.Remove(n)
	}
}

// Toggle flips the expanded flag for id and returns the new state.
func (s *ExpansionState) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.intern(id)
	if s.expanded.Contains(n) {
		s.expanded.Remove(n)
		return false
	}
	s.expanded.Add(n)
	return true
}

// IsExpanded reports the expanded flag for id. Unknown ids are collapsed.
func (s *ExpansionState) IsExpanded(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.ids[id]
	return ok && s.expanded.Contains(n)
}

// ExpandedCount returns the number of currently expanded ids.
func (s *ExpansionState) ExpandedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.expanded.GetCardinality())
}

// Prune drops expanded flags for ids the caller no longer considers live.
// Opportunistic housekeeping only; correctness never depends on it.
func (s *ExpansionState) Prune(live func(id string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var dead []uint32
	it := s.expanded.Iterator()
	for it.HasNext() {
		n := it.Next()
		if int(n) < len(s.names) && !live(s.names[n]) {
			dead = append(dead, n)
		}
	}
	for _, n := range dead {
		s.expanded.Remove(n)
	}
}
