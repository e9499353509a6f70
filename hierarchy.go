package ecs

import "sync"

// Hierarchy maintains parent/child edges between entities, rejecting
// mutations that would introduce a cycle (spec §4/§9 "Cyclic hierarchy").
// Edges are keyed by Identity so they remain valid across archetype moves
// and numeric-handle recycling.
type Hierarchy struct {
	mu sync.Mutex

	entities *entityStore
	events   *EventEmitter
}

func newHierarchy(entities *entityStore, events *EventEmitter) *Hierarchy {
	return &Hierarchy{entities: entities, events: events}
}

func (h *Hierarchy) emit(kind string, entity Identity) {
	if h.events != nil {
		h.events.Emit(kind, WatchEvent{Kind: kind, Entity: entity})
	}
}

// SetParent reparents child under parent, detaching any previous parent
// first. Passing a zero Identity for parent detaches child to the root.
// Returns ErrCyclicHierarchy if parent is child or a descendant of child.
func (h *Hierarchy) SetParent(child, parent Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	childEntity, ok := h.entities.GetByIdentity(child)
	if !ok {
		return ErrEntityNotFound
	}

	if !parent.IsZero() {
		if parent == child {
			return ErrCyclicHierarchy
		}
		if _, ok := h.entities.GetByIdentity(parent); !ok {
			return ErrEntityNotFound
		}
		if h.isDescendantOfLocked(parent, child) {
			return ErrCyclicHierarchy
		}
	}

	if childEntity.hasParent {
		h.detachLocked(childEntity.parent, child)
	}

	if parent.IsZero() {
		childEntity.hasParent = false
		childEntity.parent = Identity{}
	} else {
		parentEntity, _ := h.entities.GetByIdentity(parent)
		childEntity.hasParent = true
		childEntity.parent = parent
		parentEntity.children = append(parentEntity.children, child)
		parentEntity.touch()
	}
	childEntity.touch()
	h.emit("parent_changed", child)
	if !parent.IsZero() {
		h.emit("child_added", parent)
	}
	return nil
}

// AddChild is SetParent(child, parent) spelled from the parent's side.
func (h *Hierarchy) AddChild(parent, child Identity) error {
	return h.SetParent(child, parent)
}

// RemoveChild detaches child from parent if the edge currently exists.
func (h *Hierarchy) RemoveChild(parent, child Identity) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	childEntity, ok := h.entities.GetByIdentity(child)
	if !ok {
		return ErrEntityNotFound
	}
	if !childEntity.hasParent || childEntity.parent != parent {
		return nil
	}
	h.detachLocked(parent, child)
	childEntity.hasParent = false
	childEntity.parent = Identity{}
	childEntity.touch()
	h.emit("child_removed", parent)
	h.emit("parent_changed", child)
	return nil
}

func (h *Hierarchy) detachLocked(parent, child Identity) {
	parentEntity, ok := h.entities.GetByIdentity(parent)
	if !ok {
		return
	}
	for i, c := range parentEntity.children {
		if c == child {
			parentEntity.children = append(parentEntity.children[:i], parentEntity.children[i+1:]...)
			break
		}
	}
	parentEntity.touch()
}

// GetParent returns the immediate parent of identity, if any.
func (h *Hierarchy) GetParent(identity Identity) (Identity, bool) {
	e, ok := h.entities.GetByIdentity(identity)
	if !ok {
		return Identity{}, false
	}
	return e.Parent()
}

// GetChildren returns the immediate children of identity.
func (h *Hierarchy) GetChildren(identity Identity) []Identity {
	e, ok := h.entities.GetByIdentity(identity)
	if !ok {
		return nil
	}
	return e.Children()
}

// GetSiblings returns every other child of identity's parent, excluding
// identity itself. It returns nil for a root entity.
func (h *Hierarchy) GetSiblings(identity Identity) []Identity {
	parent, ok := h.GetParent(identity)
	if !ok {
		return nil
	}
	out := make([]Identity, 0)
	for _, c := range h.GetChildren(parent) {
		if c != identity {
			out = append(out, c)
		}
	}
	return out
}

// GetDescendants returns every transitive child of identity, pre-order.
func (h *Hierarchy) GetDescendants(identity Identity) []Identity {
	var out []Identity
	var walk func(Identity)
	walk = func(id Identity) {
		for _, c := range h.GetChildren(id) {
			out = append(out, c)
			walk(c)
		}
	}
	walk(identity)
	return out
}

// GetAncestors returns identity's parent chain, nearest first.
func (h *Hierarchy) GetAncestors(identity Identity) []Identity {
	var out []Identity
	cur := identity
	for {
		parent, ok := h.GetParent(cur)
		if !ok {
			break
		}
		out = append(out, parent)
		cur = parent
	}
	return out
}

// GetRoot returns the topmost ancestor of identity, or identity itself if it
// is already a root.
func (h *Hierarchy) GetRoot(identity Identity) Identity {
	ancestors := h.GetAncestors(identity)
	if len(ancestors) == 0 {
		return identity
	}
	return ancestors[len(ancestors)-1]
}

// GetDepth returns the number of ancestors above identity (0 for a root).
func (h *Hierarchy) GetDepth(identity Identity) int {
	return len(h.GetAncestors(identity))
}

// IsAncestorOf reports whether candidate is an ancestor of identity.
func (h *Hierarchy) IsAncestorOf(candidate, identity Identity) bool {
	for _, a := range h.GetAncestors(identity) {
		if a == candidate {
			return true
		}
	}
	return false
}

// IsDescendantOf reports whether candidate is a descendant of identity.
func (h *Hierarchy) IsDescendantOf(candidate, identity Identity) bool {
	return h.IsAncestorOf(identity, candidate)
}

func (h *Hierarchy) isDescendantOfLocked(candidate, identity Identity) bool {
	cur := candidate
	for {
		e, ok := h.entities.GetByIdentity(cur)
		if !ok || !e.hasParent {
			return false
		}
		if e.parent == identity {
			return true
		}
		cur = e.parent
	}
}

// FindChild returns the first immediate child of identity satisfying pred.
func (h *Hierarchy) FindChild(identity Identity, pred func(*Entity) bool) (Identity, bool) {
	for _, c := range h.GetChildren(identity) {
		if e, ok := h.entities.GetByIdentity(c); ok && pred(e) {
			return c, true
		}
	}
	return Identity{}, false
}

// FindChildren returns every immediate child of identity satisfying pred.
func (h *Hierarchy) FindChildren(identity Identity, pred func(*Entity) bool) []Identity {
	var out []Identity
	for _, c := range h.GetChildren(identity) {
		if e, ok := h.entities.GetByIdentity(c); ok && pred(e) {
			out = append(out, c)
		}
	}
	return out
}

// Detach removes identity entirely from the hierarchy: it is unparented and
// its children are reparented to its former parent (or made roots). Used
// during entity reclamation so dangling edges never survive a deletion
// (spec §4 "deletion propagates to hierarchy edges").
func (h *Hierarchy) Detach(identity Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.entities.GetByIdentity(identity)
	if !ok {
		return
	}
	if e.hasParent {
		h.detachLocked(e.parent, identity)
	}
	newParent := e.parent
	hadParent := e.hasParent
	for _, child := range append([]Identity(nil), e.children...) {
		childEntity, ok := h.entities.GetByIdentity(child)
		if !ok {
			continue
		}
		if hadParent {
			childEntity.parent = newParent
			childEntity.hasParent = true
			if pe, ok := h.entities.GetByIdentity(newParent); ok {
				pe.children = append(pe.children, child)
			}
		} else {
			childEntity.hasParent = false
			childEntity.parent = Identity{}
		}
		childEntity.touch()
	}
	e.children = nil
	e.hasParent = false
	e.parent = Identity{}
}
