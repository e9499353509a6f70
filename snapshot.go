package ecs

import (
	"sync"
	"time"

	json "github.com/goccy/go-json"
)

// SerializedEntity is the wire-format record for one entity and its subtree
// (spec §6 "Wire/file formats"). Field values are carried as Value so the
// same structure round-trips through JSON without reflecting on Go types.
type SerializedEntity struct {
	Name       string                `json:"name,omitempty"`
	Tags       []string              `json:"tags"`
	Components map[string][]Value    `json:"components"`
	Children   []SerializedEntity    `json:"children,omitempty"`
}

// WorldSnapshot is the full serialized engine state: every root entity
// (recursively nested with its children) plus engine-owned singletons.
// Identities are not preserved across a round trip; numeric ids are
// reassigned on restore (spec §6).
type WorldSnapshot struct {
	Entities   []SerializedEntity            `json:"entities"`
	Singletons map[string][]Value            `json:"singletons"`
	Timestamp  int64                         `json:"timestamp"`
}

// SnapshotStore is a bounded ring of WorldSnapshots (spec §4.10): Create
// trims the oldest entry once the ring is full; Get(-1) returns the most
// recent.
type SnapshotStore struct {
	mu   sync.Mutex
	max  int
	ring []WorldSnapshot
}

// NewSnapshotStore constructs a store bounded to max entries (the spec's
// default max_snapshots is 10; a non-positive max falls back to that).
func NewSnapshotStore(max int) *SnapshotStore {
	if max <= 0 {
		max = 10
	}
	return &SnapshotStore{max: max}
}

// Create appends snapshot, trimming the oldest entry if the ring is full.
func (s *SnapshotStore) Create(snapshot WorldSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = append(s.ring, snapshot)
	if len(s.ring) > s.max {
		s.ring = s.ring[len(s.ring)-s.max:]
	}
}

// Get returns the snapshot at i, where a negative index counts back from
// the most recent (-1 is the latest).
func (s *SnapshotStore) Get(i int) (WorldSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.ring)
	if i < 0 {
		i = n + i
	}
	if i < 0 || i >= n {
		return WorldSnapshot{}, ErrSnapshotIndexOutOfRange
	}
	return s.ring[i], nil
}

// Count returns the number of snapshots currently retained.
func (s *SnapshotStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ring)
}

// Clear discards every retained snapshot.
func (s *SnapshotStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = nil
}

// Marshal encodes snapshot using the engine's JSON wire format.
func (s WorldSnapshot) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalSnapshot decodes a WorldSnapshot from its wire format.
func UnmarshalSnapshot(data []byte) (WorldSnapshot, error) {
	var snap WorldSnapshot
	err := json.Unmarshal(data, &snap)
	return snap, err
}

// Serialize walks every root entity (one with no parent) into the wire
// format, plus every registered singleton, per spec §4.10.
func (e *Engine) Serialize() WorldSnapshot {
	snap := WorldSnapshot{
		Singletons: make(map[string][]Value),
		Timestamp:  nowFunc().UnixNano() / int64(time.Millisecond),
	}

	roots := e.entities.FindAll(func(ent *Entity) bool {
		_, hasParent := ent.Parent()
		return !hasParent
	})
	for _, root := range roots {
		snap.Entities = append(snap.Entities, e.serializeEntity(root))
	}

	for id, instance := range e.components.AllSingletons() {
		name, ok := e.components.NameOf(id)
		if !ok {
			continue
		}
		snap.Singletons[name] = structToValues(instance)
	}
	return snap
}

func (e *Engine) serializeEntity(ent *Entity) SerializedEntity {
	out := SerializedEntity{
		Name:       ent.Name(),
		Tags:       ent.Tags(),
		Components: make(map[string][]Value),
	}

	for _, t := range e.componentTypesOf(ent.Identity()) {
		name, ok := e.components.NameOf(t)
		if !ok {
			continue
		}
		value, ok := e.getComponentRaw(ent.Identity(), t)
		if !ok {
			continue
		}
		out.Components[name] = structToValues(value)
	}

	for _, childIdentity := range ent.Children() {
		child, ok := e.entities.GetByIdentity(childIdentity)
		if !ok {
			continue
		}
		out.Children = append(out.Children, e.serializeEntity(child))
	}
	return out
}

// componentTypesOf lists the component types currently attached to an
// entity, consulting archetype or legacy storage per the engine's mode.
func (e *Engine) componentTypesOf(identity Identity) []TypeID {
	if e.archetypeMode {
		archID, _, ok := e.entities.location(identity)
		if !ok {
			return nil
		}
		arch, ok := e.archetypes.Archetype(archID)
		if !ok {
			return nil
		}
		return arch.Types()
	}
	// Legacy mode has no reverse per-entity type index; callers relying on
	// Serialize in legacy mode are expected to also track component types
	// through their own registration bookkeeping.
	return nil
}

func (e *Engine) getComponentRaw(identity Identity, t TypeID) (any, bool) {
	if e.archetypeMode {
		return e.archetypes.GetComponent(e.entities, identity, t)
	}
	return e.legacy.Get(t, identity)
}

// Restore clears engine state and reconstructs it from snapshot, then
// sweeps every live query so match sets reflect the restored world (spec
// §4.10). Numeric ids are reassigned; identities are not preserved. Every
// entity in the snapshot is queued onto a single CommandBuffer so parent
// placeholder references resolve against their already-applied ancestors
// within one FIFO apply pass.
func (e *Engine) Restore(snapshot WorldSnapshot) error {
	e.resetWorld()

	buf := NewCommandBuffer()
	for _, rec := range snapshot.Entities {
		e.queueRestoreEntity(buf, rec, EntityRef{})
	}
	if result := e.applyCommands(buf, true); result.RolledBack {
		return result.Errors
	}

	for name, fields := range snapshot.Singletons {
		id, ok := e.components.TypeByName(name)
		if !ok {
			continue
		}
		instance, err := e.components.Construct(id, fields)
		if err != nil {
			continue
		}
		e.components.SetSingleton(id, instance)
	}

	for _, ent := range e.entities.FindAll(func(*Entity) bool { return true }) {
		e.queries.Update(ent.Identity())
	}
	return nil
}

func (e *Engine) resetWorld() {
	live := e.entities.FindAll(func(*Entity) bool { return true })
	for _, ent := range live {
		e.entities.QueueFree(ent)
	}
	e.cleanup()
}

// queueRestoreEntity appends rec and its subtree onto buf, in pre-order, so
// every ancestor's spawn command precedes its descendants' reparent
// commands within the same FIFO apply pass.
func (e *Engine) queueRestoreEntity(buf *CommandBuffer, rec SerializedEntity, parent EntityRef) {
	builder := buf.Spawn(rec.Name)
	for _, tag := range rec.Tags {
		builder.WithTag(tag)
	}
	if parent.kind == entityRefConcrete && !parent.identity.IsZero() || parent.kind == entityRefPlaceholder {
		builder.WithParent(parent)
	}
	ref := builder.Ref()

	for name, fields := range rec.Components {
		id, ok := e.components.TypeByName(name)
		if !ok {
			continue
		}
		instance, err := e.components.Construct(id, fields)
		if err != nil {
			continue
		}
		buf.AddComponent(ref, id, instance)
	}

	for _, child := range rec.Children {
		e.queueRestoreEntity(buf, child, ref)
	}
}
