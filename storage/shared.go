package storage

import (
	"reflect"
	"sync"

	ecs "github.com/nullforge/ecs"
)

// sharedStrategy creates stores where multiple entities can reference the
// same component instance, useful for entities with identical data (e.g.
// every zombie sharing the same base stats) and memory-efficient at large
// entity counts. Adapted from the teacher's shared.go: EntityID keys
// replaced with Identity, ComponentType replaced with TypeID.
//
// Shared components are immutable from an individual entity's perspective;
// "modifying" one means removing it and setting a new value.
type sharedStrategy struct{}

// NewSharedStrategy constructs a shared storage strategy.
func NewSharedStrategy() ecs.StorageStrategy {
	return sharedStrategy{}
}

func (sharedStrategy) Name() string { return "shared" }

func (sharedStrategy) NewStore(t ecs.TypeID) ecs.ComponentStore {
	return &sharedStore{
		typ:           t,
		entityToValue: make(map[ecs.Identity]uint32),
		valueToData:   make(map[uint32]*sharedValue),
		nextValueID:   1,
	}
}

type sharedValue struct {
	data     any
	refCount int
}

type sharedStore struct {
	mu            sync.RWMutex
	typ           ecs.TypeID
	entityToValue map[ecs.Identity]uint32
	valueToData   map[uint32]*sharedValue
	nextValueID   uint32
	count         int
}

func (s *sharedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *sharedStore) Has(identity ecs.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.entityToValue[identity]
	return exists
}

func (s *sharedStore) Get(identity ecs.Identity) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	valueID, exists := s.entityToValue[identity]
	if !exists {
		return nil, false
	}
	sharedVal, ok := s.valueToData[valueID]
	if !ok {
		return nil, false
	}
	return sharedVal.data, true
}

func (s *sharedStore) Iterate(fn func(ecs.Identity, any) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for identity, valueID := range s.entityToValue {
		sharedVal, ok := s.valueToData[valueID]
		if !ok {
			continue
		}
		if !fn(identity, sharedVal.data) {
			return
		}
	}
}

func (s *sharedStore) Set(identity ecs.Identity, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oldValueID, exists := s.entityToValue[identity]; exists {
		s.decrementRefCountLocked(oldValueID)
	} else {
		s.count++
	}

	valueID := s.findOrCreateValueLocked(value)
	s.entityToValue[identity] = valueID
	return nil
}

func (s *sharedStore) Remove(identity ecs.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	valueID, exists := s.entityToValue[identity]
	if !exists {
		return false
	}
	delete(s.entityToValue, identity)
	s.decrementRefCountLocked(valueID)
	s.count--
	return true
}

func (s *sharedStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entityToValue = make(map[ecs.Identity]uint32)
	s.valueToData = make(map[uint32]*sharedValue)
	s.count = 0
}

// findOrCreateValueLocked deduplicates component values using deep equality.
func (s *sharedStore) findOrCreateValueLocked(value any) uint32 {
	for valueID, sharedVal := range s.valueToData {
		if reflect.DeepEqual(sharedVal.data, value) {
			sharedVal.refCount++
			return valueID
		}
	}
	valueID := s.nextValueID
	s.nextValueID++
	s.valueToData[valueID] = &sharedValue{data: value, refCount: 1}
	return valueID
}

func (s *sharedStore) decrementRefCountLocked(valueID uint32) {
	sharedVal, ok := s.valueToData[valueID]
	if !ok {
		return
	}
	sharedVal.refCount--
	if sharedVal.refCount <= 0 {
		delete(s.valueToData, valueID)
	}
}

// Stats returns statistics about the shared store for debugging and
// capacity-planning.
func (s *sharedStore) Stats() SharedStorageStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SharedStorageStats{
		EntityCount:      s.count,
		UniqueValueCount: len(s.valueToData),
		SharingRatio:     float64(s.count) / float64(maxInt(len(s.valueToData), 1)),
	}
}

// SharedStorageStats reports shared-component storage efficiency.
type SharedStorageStats struct {
	EntityCount      int
	UniqueValueCount int
	SharingRatio     float64
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

var _ ecs.ComponentStore = (*sharedStore)(nil)
