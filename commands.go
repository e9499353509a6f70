package ecs

import "fmt"

// entityRefKind distinguishes an already-known identity from a forward
// reference to an entity spawned earlier in the same buffer.
type entityRefKind uint8

const (
	entityRefConcrete entityRefKind = iota
	entityRefPlaceholder
)

// EntityRef is a tagged reference to an entity inside a CommandBuffer: either
// a concrete Identity, or a placeholder bound to a Spawn command queued
// earlier in the same buffer and resolved only once that command applies
// (spec §4.5 "placeholder entity references").
type EntityRef struct {
	kind        entityRefKind
	identity    Identity
	placeholder int
}

// RefTo wraps an already-known identity as an EntityRef.
func RefTo(identity Identity) EntityRef {
	return EntityRef{kind: entityRefConcrete, identity: identity}
}

func (r EntityRef) resolve(ctx *commandExecContext) (Identity, error) {
	switch r.kind {
	case entityRefConcrete:
		if r.identity.IsZero() {
			return Identity{}, nil
		}
		if _, ok := ctx.entities.GetByIdentity(r.identity); !ok {
			return Identity{}, ErrEntityNotFound
		}
		return r.identity, nil
	case entityRefPlaceholder:
		identity, ok := ctx.placeholders[r.placeholder]
		if !ok {
			return Identity{}, ErrPlaceholderUnresolved
		}
		return identity, nil
	default:
		return Identity{}, ErrPlaceholderUnresolved
	}
}

// commandExecContext bundles the kernel state a Command needs to apply
// itself, assembled by the engine at flush time.
type commandExecContext struct {
	entities      *entityStore
	archetypes    *ArchetypeStore
	components    *ComponentRegistry
	hierarchy     *Hierarchy
	legacy        *legacyStorageProvider
	queries       *QueryIndex
	tracker       *ChangeTracker
	events        *EventEmitter
	archetypeMode bool

	placeholders map[int]Identity
}

// Command is one deferred, individually invertible mutation queued onto a
// CommandBuffer (spec §4.5).
type Command interface {
	apply(ctx *commandExecContext) error
	inverse(ctx *commandExecContext) Command
}

// --- spawn / despawn ---

type spawnCommand struct {
	placeholderID int
	name          string
	tags          []string
}

func (c *spawnCommand) apply(ctx *commandExecContext) error {
	e := ctx.entities.Create(c.name)
	for _, tag := range c.tags {
		ctx.entities.AddTag(e, tag)
	}
	if ctx.archetypeMode {
		if err := ctx.archetypes.MoveEntity(ctx.entities, e.identity, nil, nil); err != nil {
			return err
		}
	}
	ctx.placeholders[c.placeholderID] = e.identity
	ctx.queries.Update(e.identity)
	return nil
}

func (c *spawnCommand) inverse(ctx *commandExecContext) Command {
	identity, ok := ctx.placeholders[c.placeholderID]
	if !ok {
		return nil
	}
	return &despawnCommand{ref: RefTo(identity), immediate: true}
}

type despawnCommand struct {
	ref EntityRef
	// immediate marks a rollback-issued despawn (undoing a spawn) that must
	// reclaim synchronously rather than waiting for end-of-tick Cleanup,
	// since the entity was never observed outside this buffer's execution.
	immediate bool
}

func (c *despawnCommand) apply(ctx *commandExecContext) error {
	identity, err := c.ref.resolve(ctx)
	if err != nil {
		return err
	}
	e, ok := ctx.entities.GetByIdentity(identity)
	if !ok {
		return ErrEntityNotFound
	}
	if c.immediate {
		ctx.queries.Evict(identity)
		ctx.hierarchy.Detach(identity)
		if ctx.archetypeMode {
			ctx.archetypes.RemoveEntity(ctx.entities, identity)
		} else {
			ctx.legacy.EvictEntity(identity)
		}
		ctx.entities.QueueFree(e)
		ctx.entities.Cleanup()
		return nil
	}
	ctx.entities.QueueFree(e)
	return nil
}

func (c *despawnCommand) inverse(ctx *commandExecContext) Command {
	return nil // reclaimed entities cannot be un-deleted
}

// --- component add / remove ---

type addComponentCommand struct {
	ref      EntityRef
	typ      TypeID
	value    any
	hadPrior bool
	prior    any
}

func (c *addComponentCommand) apply(ctx *commandExecContext) error {
	identity, err := c.ref.resolve(ctx)
	if err != nil {
		return err
	}
	if ok, reason := ctx.components.Validate(c.typ, c.value); !ok {
		return fmt.Errorf("%w: %s", ErrComponentRejected, reason)
	}

	if ctx.archetypeMode {
		archID, _, _ := ctx.entities.location(identity)
		var currentTypes []TypeID
		if arch, ok := ctx.archetypes.Archetype(archID); ok {
			if prior, ok := ctx.archetypes.GetComponent(ctx.entities, identity, c.typ); ok {
				c.hadPrior = true
				c.prior = prior
			}
			currentTypes = arch.Types()
		}
		newTypes := unionType(currentTypes, c.typ)
		if err := ctx.archetypes.MoveEntity(ctx.entities, identity, newTypes, map[TypeID]any{c.typ: c.value}); err != nil {
			return err
		}
	} else {
		if prior, ok := ctx.legacy.Get(c.typ, identity); ok {
			c.hadPrior = true
			c.prior = prior
		}
		if err := ctx.legacy.Set(c.typ, identity, c.value); err != nil {
			return err
		}
	}

	if hooks := ctx.components.HooksOf(c.typ); hooks.OnCreate != nil && !c.hadPrior {
		hooks.OnCreate(identity, c.value)
	}
	ctx.tracker.ObserveWrite(identity, c.typ)
	ctx.queries.Update(identity)
	if ctx.events != nil {
		ctx.events.Emit("component_changed", WatchEvent{Kind: "component_changed", Entity: identity, Type: c.typ})
	}
	return nil
}

func (c *addComponentCommand) inverse(ctx *commandExecContext) Command {
	if c.hadPrior {
		return &addComponentCommand{ref: c.ref, typ: c.typ, value: c.prior}
	}
	return &removeComponentCommand{ref: c.ref, typ: c.typ}
}

type removeComponentCommand struct {
	ref      EntityRef
	typ      TypeID
	hadPrior bool
	prior    any
}

func (c *removeComponentCommand) apply(ctx *commandExecContext) error {
	identity, err := c.ref.resolve(ctx)
	if err != nil {
		return err
	}

	if ctx.archetypeMode {
		archID, _, _ := ctx.entities.location(identity)
		arch, ok := ctx.archetypes.Archetype(archID)
		if !ok {
			return ErrEntityNotFound
		}
		if prior, ok := ctx.archetypes.GetComponent(ctx.entities, identity, c.typ); ok {
			c.hadPrior = true
			c.prior = prior
		}
		newTypes := removeType(arch.Types(), c.typ)
		if err := ctx.archetypes.MoveEntity(ctx.entities, identity, newTypes, nil); err != nil {
			return err
		}
	} else {
		if prior, ok := ctx.legacy.Get(c.typ, identity); ok {
			c.hadPrior = true
			c.prior = prior
		}
		ctx.legacy.Remove(c.typ, identity)
	}

	if hooks := ctx.components.HooksOf(c.typ); hooks.OnDestroy != nil && c.hadPrior {
		hooks.OnDestroy(identity, c.prior)
	}
	ctx.queries.Update(identity)
	if ctx.events != nil {
		ctx.events.Emit("component_changed", WatchEvent{Kind: "component_changed", Entity: identity, Type: c.typ})
	}
	return nil
}

func (c *removeComponentCommand) inverse(ctx *commandExecContext) Command {
	if !c.hadPrior {
		return nil
	}
	return &addComponentCommand{ref: c.ref, typ: c.typ, value: c.prior}
}

func unionType(types []TypeID, t TypeID) []TypeID {
	for _, existing := range types {
		if existing == t {
			return types
		}
	}
	return append(append([]TypeID(nil), types...), t)
}

func removeType(types []TypeID, t TypeID) []TypeID {
	out := make([]TypeID, 0, len(types))
	for _, existing := range types {
		if existing != t {
			out = append(out, existing)
		}
	}
	return out
}

// --- tags ---

type addTagCommand struct {
	ref EntityRef
	tag string
}

func (c *addTagCommand) apply(ctx *commandExecContext) error {
	identity, err := c.ref.resolve(ctx)
	if err != nil {
		return err
	}
	e, ok := ctx.entities.GetByIdentity(identity)
	if !ok {
		return ErrEntityNotFound
	}
	ctx.entities.AddTag(e, c.tag)
	ctx.queries.Update(identity)
	return nil
}

func (c *addTagCommand) inverse(ctx *commandExecContext) Command {
	return &removeTagCommand{ref: c.ref, tag: c.tag}
}

type removeTagCommand struct {
	ref EntityRef
	tag string
}

func (c *removeTagCommand) apply(ctx *commandExecContext) error {
	identity, err := c.ref.resolve(ctx)
	if err != nil {
		return err
	}
	e, ok := ctx.entities.GetByIdentity(identity)
	if !ok {
		return ErrEntityNotFound
	}
	ctx.entities.RemoveTag(e, c.tag)
	ctx.queries.Update(identity)
	return nil
}

func (c *removeTagCommand) inverse(ctx *commandExecContext) Command {
	return &addTagCommand{ref: c.ref, tag: c.tag}
}

// --- hierarchy ---

type setParentCommand struct {
	child, parent EntityRef
	hadPrior      bool
	priorParent   Identity
}

func (c *setParentCommand) apply(ctx *commandExecContext) error {
	child, err := c.child.resolve(ctx)
	if err != nil {
		return err
	}
	parent, err := c.parent.resolve(ctx)
	if err != nil {
		return err
	}
	if prev, ok := ctx.hierarchy.GetParent(child); ok {
		c.hadPrior = true
		c.priorParent = prev
	}
	return ctx.hierarchy.SetParent(child, parent)
}

func (c *setParentCommand) inverse(ctx *commandExecContext) Command {
	if !c.hadPrior {
		return &setParentCommand{child: c.child, parent: RefTo(Identity{})}
	}
	return &setParentCommand{child: c.child, parent: RefTo(c.priorParent)}
}

type removeChildCommand struct {
	parent, child EntityRef
}

func (c *removeChildCommand) apply(ctx *commandExecContext) error {
	parent, err := c.parent.resolve(ctx)
	if err != nil {
		return err
	}
	child, err := c.child.resolve(ctx)
	if err != nil {
		return err
	}
	return ctx.hierarchy.RemoveChild(parent, child)
}

func (c *removeChildCommand) inverse(ctx *commandExecContext) Command {
	return &setParentCommand{child: c.child, parent: c.parent}
}
