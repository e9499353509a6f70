package storage

import (
	"fmt"

	ecs "github.com/nullforge/ecs"
)

// denseStrategy is the default legacy (non-archetype) storage strategy: a
// contiguous, identity-indexed slot array per component type, adapted from
// the teacher's EntityID-indexed dense.go. Identity has no compact integer
// form of its own, so slots are assigned lazily on first Set and reused via
// a free list on Remove, preserving the teacher's array-of-slots shape
// without requiring a dense numeric key.
type denseStrategy struct{}

// NewDenseStrategy constructs a dense storage strategy.
func NewDenseStrategy() ecs.StorageStrategy {
	return denseStrategy{}
}

func (denseStrategy) Name() string { return "dense" }

func (denseStrategy) NewStore(t ecs.TypeID) ecs.ComponentStore {
	return &denseStore{
		typ:    t,
		lookup: make(map[ecs.Identity]int),
	}
}

type denseSlot struct {
	identity ecs.Identity
	value    any
	occupied bool
}

type denseStore struct {
	typ    ecs.TypeID
	slots  []denseSlot
	lookup map[ecs.Identity]int
	free   []int
	count  int
}

func (s *denseStore) Len() int { return s.count }

func (s *denseStore) Has(identity ecs.Identity) bool {
	idx, ok := s.lookup[identity]
	return ok && s.slots[idx].occupied
}

func (s *denseStore) Get(identity ecs.Identity) (any, bool) {
	idx, ok := s.lookup[identity]
	if !ok || !s.slots[idx].occupied {
		return nil, false
	}
	return s.slots[idx].value, true
}

func (s *denseStore) Set(identity ecs.Identity, value any) error {
	if identity.IsZero() {
		return fmt.Errorf("dense: cannot set zero identity")
	}
	if idx, ok := s.lookup[identity]; ok {
		s.slots[idx].value = value
		return nil
	}

	var idx int
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
		s.slots[idx] = denseSlot{identity: identity, value: value, occupied: true}
	} else {
		idx = len(s.slots)
		s.slots = append(s.slots, denseSlot{identity: identity, value: value, occupied: true})
	}
	s.lookup[identity] = idx
	s.count++
	return nil
}

func (s *denseStore) Remove(identity ecs.Identity) bool {
	idx, ok := s.lookup[identity]
	if !ok || !s.slots[idx].occupied {
		return false
	}
	s.slots[idx] = denseSlot{}
	delete(s.lookup, identity)
	s.free = append(s.free, idx)
	s.count--
	return true
}

func (s *denseStore) Iterate(fn func(ecs.Identity, any) bool) {
	for _, slot := range s.slots {
		if !slot.occupied {
			continue
		}
		if !fn(slot.identity, slot.value) {
			return
		}
	}
}

func (s *denseStore) Clear() {
	s.slots = nil
	s.lookup = make(map[ecs.Identity]int)
	s.free = nil
	s.count = 0
}

var _ ecs.ComponentStore = (*denseStore)(nil)
