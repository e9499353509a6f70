package ecs

import (
	"sync"
	"time"
)

// ChangeTracker records which components have changed since the caller last
// cleared them, either through explicit mark_dirty calls or, once a type is
// wrapped, automatically on every write (spec §4.6).
type ChangeTracker struct {
	mu sync.Mutex

	dirty map[Identity]map[TypeID]struct{}

	wrapped map[TypeID]struct{}
	batch   bool

	dispatcher *debounceDispatcher
	onFlush    func()
}

// newChangeTracker constructs a tracker. debounce, when positive, coalesces
// automatic-write notifications so onFlush fires at most once per quiet
// period instead of once per write.
func newChangeTracker(debounce time.Duration) *ChangeTracker {
	t := &ChangeTracker{
		dirty:   make(map[Identity]map[TypeID]struct{}),
		wrapped: make(map[TypeID]struct{}),
	}
	t.dispatcher = newDebounceDispatcher(debounce, func() {
		t.mu.Lock()
		fn := t.onFlush
		t.mu.Unlock()
		if fn != nil {
			fn()
		}
	})
	return t
}

// OnFlush installs the callback invoked when the debounce timer fires.
func (t *ChangeTracker) OnFlush(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFlush = fn
}

// MarkDirty records identity/t as changed. With batch mode off, this is also
// how automatic tracking reports a write once a type has been wrapped.
func (t *ChangeTracker) MarkDirty(identity Identity, typ TypeID) {
	t.mu.Lock()
	set, ok := t.dirty[identity]
	if !ok {
		set = make(map[TypeID]struct{})
		t.dirty[identity] = set
	}
	set[typ] = struct{}{}
	batch := t.batch
	t.mu.Unlock()
	if !batch {
		t.dispatcher.Notify()
	}
}

// GetDirtyComponents returns the set of component types marked dirty on
// identity since the last clear.
func (t *ChangeTracker) GetDirtyComponents(identity Identity) []TypeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.dirty[identity]
	if !ok {
		return nil
	}
	out := make([]TypeID, 0, len(set))
	for typ := range set {
		out = append(out, typ)
	}
	return out
}

// IsDirty reports whether identity has any dirty component, or specifically
// typ when it is non-zero-valued and present in the registry (callers pass a
// real TypeID; zero is never assigned by ComponentRegistry).
func (t *ChangeTracker) IsDirty(identity Identity, typ TypeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.dirty[identity]
	if !ok {
		return false
	}
	if typ == 0 {
		return len(set) > 0
	}
	_, ok = set[typ]
	return ok
}

// ClearDirtyComponents removes every dirty marker for identity.
func (t *ChangeTracker) ClearDirtyComponents(identity Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.dirty, identity)
}

// ClearAllDirty clears every tracked entity's dirty markers at once.
func (t *ChangeTracker) ClearAllDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = make(map[Identity]map[TypeID]struct{})
}

// DirtyEntities returns every entity currently carrying at least one dirty
// component marker.
func (t *ChangeTracker) DirtyEntities() []Identity {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Identity, 0, len(t.dirty))
	for id := range t.dirty {
		out = append(out, id)
	}
	return out
}

// WrapType enables automatic dirty-tracking for typ: every SetComponent call
// the engine routes through the tracker for an already-wrapped type marks
// the entity dirty without the caller calling MarkDirty itself. Wrapping an
// already-wrapped type is a no-op (idempotent per spec §4.6).
func (t *ChangeTracker) WrapType(typ TypeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.wrapped[typ] = struct{}{}
}

// UnwrapType disables automatic tracking for typ.
func (t *ChangeTracker) UnwrapType(typ TypeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.wrapped, typ)
}

// IsWrapped reports whether typ has automatic tracking enabled.
func (t *ChangeTracker) IsWrapped(typ TypeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.wrapped[typ]
	return ok
}

// ObserveWrite is called by the engine's SetComponent path on every write;
// it marks the write dirty only when typ has been wrapped for automatic
// tracking.
func (t *ChangeTracker) ObserveWrite(identity Identity, typ TypeID) {
	if !t.IsWrapped(typ) {
		return
	}
	t.MarkDirty(identity, typ)
}

// SetBatchMode toggles whether MarkDirty notifications flush immediately
// (false, the default outside an explicit debounce window) or accumulate
// until FlushBatch is called, regardless of the debounce timer.
func (t *ChangeTracker) SetBatchMode(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batch = enabled
}

// FlushBatch invokes the flush callback immediately, bypassing any pending
// debounce timer. Used to force-deliver accumulated changes, e.g. at the end
// of a tick.
func (t *ChangeTracker) FlushBatch() {
	t.mu.Lock()
	fn := t.onFlush
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Close stops the underlying debounce timer.
func (t *ChangeTracker) Close() {
	t.dispatcher.Close()
}
