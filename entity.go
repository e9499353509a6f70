package ecs

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Identity is an opaque, stable handle for an entity. It is assigned once at
// creation and never reused for the lifetime of the engine, unlike the
// numeric EntityID below (spec §3: "Identity is invariant for the entity's
// lifetime; numeric ids may be reissued after reclamation").
type Identity struct {
	uuid uuid.UUID
}

// IsZero reports whether the identity is the unset zero value.
func (id Identity) IsZero() bool { return id.uuid == uuid.Nil }

// String renders the identity for debugging and log output.
func (id Identity) String() string {
	if id.IsZero() {
		return "Identity(nil)"
	}
	return id.uuid.String()
}

func newIdentity() Identity {
	return Identity{uuid: uuid.New()}
}

// EntityID is the monotonically assigned numeric handle used as a storage
// index. The generation field detects use of a stale handle after the slot
// has been recycled; the index itself may be reissued (spec §3).
type EntityID struct {
	index      uint32
	generation uint32
}

// Index returns the backing storage index of the entity.
func (id EntityID) Index() uint32 { return id.index }

// Generation returns the recycle generation associated with the index.
func (id EntityID) Generation() uint32 { return id.generation }

// IsZero reports whether the identifier is the zero value.
func (id EntityID) IsZero() bool { return id.index == 0 && id.generation == 0 }

// String renders the numeric identifier for debugging purposes.
func (id EntityID) String() string {
	if id.IsZero() {
		return "EntityID(0:0)"
	}
	return fmt.Sprintf("EntityID(%d:%d)", id.index, id.generation)
}

// EntityIDFromParts constructs an identifier from raw components, primarily
// for tests and storage backends that need to reconstruct a handle.
func EntityIDFromParts(index, generation uint32) EntityID {
	return EntityID{index: index, generation: generation}
}

// Entity is the full record the engine keeps per live entity. Fields are
// mutated exclusively through EntityStore and Hierarchy methods; callers
// never construct or mutate an Entity directly.
type Entity struct {
	id       EntityID
	identity Identity
	name     string
	tags     map[string]struct{}

	hasParent bool
	parent    Identity
	children  []Identity

	dirty             bool
	markedForDeletion bool
	changeVersion     uint64

	archetype archetypeID
	row       int
	hasRow    bool
}

// ID returns the entity's numeric storage handle.
func (e *Entity) ID() EntityID { return e.id }

// Identity returns the entity's stable, never-reused identity token.
func (e *Entity) Identity() Identity { return e.identity }

// Name returns the entity's human-readable name, or "" if unset.
func (e *Entity) Name() string { return e.name }

// Tags returns a snapshot slice of the entity's current tags.
func (e *Entity) Tags() []string {
	out := make([]string, 0, len(e.tags))
	for t := range e.tags {
		out = append(out, t)
	}
	return out
}

// HasTag reports whether the entity carries the given tag.
func (e *Entity) HasTag(tag string) bool {
	_, ok := e.tags[tag]
	return ok
}

// MarkedForDeletion reports whether queue_free has been called on this entity.
func (e *Entity) MarkedForDeletion() bool { return e.markedForDeletion }

// ChangeVersion returns the counter incremented on every structural change.
func (e *Entity) ChangeVersion() uint64 { return e.changeVersion }

// Parent returns the entity's parent identity, if any.
func (e *Entity) Parent() (Identity, bool) { return e.parent, e.hasParent }

// Children returns a snapshot slice of the entity's child identities.
func (e *Entity) Children() []Identity {
	return append([]Identity(nil), e.children...)
}

func (e *Entity) touch() { e.changeVersion++ }

// entityStore allocates, pools, and indexes entities. It implements §4.1 of
// the kernel spec: identity/numeric/name/tag lookup, queue_free, and
// end-of-tick reclamation.
type entityStore struct {
	mu sync.Mutex

	generations []uint32
	free        []uint32
	slots       []*Entity // index -> live entity, nil when free

	byIdentity map[Identity]*Entity
	byName     map[string]*Entity
	byTag      map[string]map[Identity]*Entity

	pendingDeletion map[Identity]*Entity

	shellPool sync.Pool

	onEvict func(*Entity) // invoked during cleanup, before the shell returns to the pool
}

func newEntityStore() *entityStore {
	s := &entityStore{
		byIdentity:      make(map[Identity]*Entity),
		byName:          make(map[string]*Entity),
		byTag:           make(map[string]map[Identity]*Entity),
		pendingDeletion: make(map[Identity]*Entity),
	}
	s.shellPool.New = func() any { return &Entity{} }
	return s
}

// Create allocates a new entity, recycling a pooled shell and numeric index
// where possible. name may be empty.
func (s *entityStore) Create(name string) *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()

	var index uint32
	if n := len(s.free); n > 0 {
		index = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		index = uint32(len(s.generations))
		s.generations = append(s.generations, 0)
		s.slots = append(s.slots, nil)
	}
	s.generations[index]++

	e := s.shellPool.Get().(*Entity)
	*e = Entity{
		id:       EntityID{index: index, generation: s.generations[index]},
		identity: newIdentity(),
		tags:     make(map[string]struct{}),
	}
	s.slots[index] = e
	s.byIdentity[e.identity] = e

	if name != "" {
		if _, taken := s.byName[name]; !taken {
			e.name = name
			s.byName[name] = e
		}
		// First registration wins (spec §9); later callers keep their entity
		// but the name index is not displaced.
	}
	return e
}

// GetByIdentity looks up a live entity by its stable identity.
func (s *entityStore) GetByIdentity(id Identity) (*Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byIdentity[id]
	return e, ok
}

// GetByNumeric looks up a live entity by its numeric handle, rejecting stale
// generations.
func (s *entityStore) GetByNumeric(id EntityID) (*Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(id.index) >= len(s.slots) {
		return nil, false
	}
	e := s.slots[id.index]
	if e == nil || e.id.generation != id.generation {
		return nil, false
	}
	return e, true
}

// GetByName performs an O(1) lookup via the name index.
func (s *entityStore) GetByName(name string) (*Entity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byName[name]
	return e, ok
}

// GetByTag returns every live entity currently carrying the given tag.
func (s *entityStore) GetByTag(tag string) []*Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.byTag[tag]
	out := make([]*Entity, 0, len(set))
	for _, e := range set {
		out = append(out, e)
	}
	return out
}

// Find returns the first live entity satisfying pred, or nil.
func (s *entityStore) Find(pred func(*Entity) bool) *Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.slots {
		if e != nil && pred(e) {
			return e
		}
	}
	return nil
}

// FindAll returns every live entity satisfying pred.
func (s *entityStore) FindAll(pred func(*Entity) bool) []*Entity {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Entity
	for _, e := range s.slots {
		if e != nil && pred(e) {
			out = append(out, e)
		}
	}
	return out
}

// AddTag adds tag to the entity's tag set; a duplicate add is a no-op.
func (s *entityStore) AddTag(e *Entity, tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := e.tags[tag]; ok {
		return false
	}
	e.tags[tag] = struct{}{}
	set, ok := s.byTag[tag]
	if !ok {
		set = make(map[Identity]*Entity)
		s.byTag[tag] = set
	}
	set[e.identity] = e
	e.touch()
	return true
}

// RemoveTag removes tag from the entity's tag set.
func (s *entityStore) RemoveTag(e *Entity, tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := e.tags[tag]; !ok {
		return false
	}
	delete(e.tags, tag)
	if set, ok := s.byTag[tag]; ok {
		delete(set, e.identity)
		if len(set) == 0 {
			delete(s.byTag, tag)
		}
	}
	e.touch()
	return true
}

// QueueFree marks an entity for deletion; it is not removed from storage
// until Cleanup runs at the end of the tick.
func (s *entityStore) QueueFree(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.markedForDeletion {
		return
	}
	e.markedForDeletion = true
	s.pendingDeletion[e.identity] = e
}

// IsAlive reports whether the numeric handle still refers to a live,
// not-yet-reclaimed entity.
func (s *entityStore) IsAlive(id EntityID) bool {
	_, ok := s.GetByNumeric(id)
	return ok
}

// Count returns the number of currently live (including marked-for-deletion
// but not yet reclaimed) entities.
func (s *entityStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.slots {
		if e != nil {
			n++
		}
	}
	return n
}

// Cleanup reclaims every entity marked for deletion, removing it from every
// index before returning its shell to the pool. It returns the reclaimed
// entities, but each one has already been reset and put back in the pool by
// then, so callers that need an entity's identity must read it before
// calling Cleanup.
func (s *entityStore) Cleanup() []*Entity {
	s.mu.Lock()
	pending := make([]*Entity, 0, len(s.pendingDeletion))
	for _, e := range s.pendingDeletion {
		pending = append(pending, e)
	}
	s.pendingDeletion = make(map[Identity]*Entity)
	s.mu.Unlock()

	reclaimed := make([]*Entity, 0, len(pending))
	for _, e := range pending {
		if s.onEvict != nil {
			s.onEvict(e)
		}
		s.reclaim(e)
		reclaimed = append(reclaimed, e)
	}
	return reclaimed
}

func (s *entityStore) reclaim(e *Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byIdentity, e.identity)
	if e.name != "" {
		if cur, ok := s.byName[e.name]; ok && cur.identity == e.identity {
			delete(s.byName, e.name)
		}
	}
	for tag := range e.tags {
		if set, ok := s.byTag[tag]; ok {
			delete(set, e.identity)
			if len(set) == 0 {
				delete(s.byTag, tag)
			}
		}
	}

	idx := e.id.index
	if int(idx) < len(s.slots) {
		s.slots[idx] = nil
	}
	s.free = append(s.free, idx)

	*e = Entity{}
	s.shellPool.Put(e)
}
