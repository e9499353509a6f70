package ecs

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// CommandBuffer accumulates deferred commands (spec §4.5). Systems queue
// mutations against a buffer during a tick instead of touching storage
// directly; the engine flushes the buffer at a defined point, applying
// commands strictly in FIFO order.
type CommandBuffer struct {
	commands        []Command
	nextPlaceholder int
}

// NewCommandBuffer creates an empty buffer.
func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{}
}

// Len reports how many commands are queued.
func (b *CommandBuffer) Len() int {
	return len(b.commands)
}

// Despawn queues deletion of the entity ref refers to.
func (b *CommandBuffer) Despawn(ref EntityRef) {
	b.commands = append(b.commands, &despawnCommand{ref: ref})
}

// AddComponent queues a component insertion on ref.
func (b *CommandBuffer) AddComponent(ref EntityRef, typ TypeID, value any) {
	b.commands = append(b.commands, &addComponentCommand{ref: ref, typ: typ, value: value})
}

// RemoveComponent queues a component removal on ref.
func (b *CommandBuffer) RemoveComponent(ref EntityRef, typ TypeID) {
	b.commands = append(b.commands, &removeComponentCommand{ref: ref, typ: typ})
}

// AddTag queues a tag addition on ref.
func (b *CommandBuffer) AddTag(ref EntityRef, tag string) {
	b.commands = append(b.commands, &addTagCommand{ref: ref, tag: tag})
}

// RemoveTag queues a tag removal on ref.
func (b *CommandBuffer) RemoveTag(ref EntityRef, tag string) {
	b.commands = append(b.commands, &removeTagCommand{ref: ref, tag: tag})
}

// SetParent queues a reparent of child under parent. Passing a zero
// EntityRef (RefTo(Identity{})) detaches child to the root.
func (b *CommandBuffer) SetParent(child, parent EntityRef) {
	b.commands = append(b.commands, &setParentCommand{child: child, parent: parent})
}

// AddChild is SetParent(child, parent) spelled from the parent's side.
func (b *CommandBuffer) AddChild(parent, child EntityRef) {
	b.SetParent(child, parent)
}

// RemoveChild queues detachment of child from parent.
func (b *CommandBuffer) RemoveChild(parent, child EntityRef) {
	b.commands = append(b.commands, &removeChildCommand{parent: parent, child: child})
}

// SpawnBuilder is the fluent entry point returned by CommandBuffer.Spawn,
// letting a caller queue a new entity plus its initial tags, components, and
// parent in one chained expression (spec §6).
type SpawnBuilder struct {
	buf *CommandBuffer
	ref EntityRef
}

// Spawn queues creation of a new entity and returns a builder for chaining
// further setup commands against it. The returned EntityRef is a placeholder
// that resolves once the spawn command applies.
func (b *CommandBuffer) Spawn(name string) *SpawnBuilder {
	id := b.nextPlaceholder
	b.nextPlaceholder++
	ref := EntityRef{kind: entityRefPlaceholder, placeholder: id}
	b.commands = append(b.commands, &spawnCommand{placeholderID: id, name: name})
	return &SpawnBuilder{buf: b, ref: ref}
}

// WithTag queues a tag addition on the entity being built.
func (sb *SpawnBuilder) WithTag(tag string) *SpawnBuilder {
	sb.buf.AddTag(sb.ref, tag)
	return sb
}

// WithComponent queues a component insertion on the entity being built.
func (sb *SpawnBuilder) WithComponent(typ TypeID, value any) *SpawnBuilder {
	sb.buf.AddComponent(sb.ref, typ, value)
	return sb
}

// WithParent queues reparenting the entity being built under parent.
func (sb *SpawnBuilder) WithParent(parent EntityRef) *SpawnBuilder {
	sb.buf.SetParent(sb.ref, parent)
	return sb
}

// Ref returns the placeholder reference for the entity being built, usable
// immediately as the target of later commands in the same buffer.
func (sb *SpawnBuilder) Ref() EntityRef {
	return sb.ref
}

// SpawnBatch queues n entities in one call, invoking fn(i, builder) for each
// so the caller can configure per-index components/tags, and returns every
// queued entity's placeholder reference in index order (spec §6
// "commands.spawnBatch(n, fn)").
func (b *CommandBuffer) SpawnBatch(n int, fn func(i int, sb *SpawnBuilder)) []EntityRef {
	refs := make([]EntityRef, 0, n)
	for i := 0; i < n; i++ {
		sb := b.Spawn("")
		if fn != nil {
			fn(i, sb)
		}
		refs = append(refs, sb.Ref())
	}
	return refs
}

// Drain returns queued commands and resets the buffer.
func (b *CommandBuffer) Drain() []Command {
	drained := b.commands
	b.commands = nil
	return drained
}

// absorb moves other's queued commands onto b, draining other in the
// process. Used by the scheduler to collect every system's commands into
// one tick-scoped buffer applied once at the end of the tick (spec §5).
func (b *CommandBuffer) absorb(other *CommandBuffer) {
	b.commands = append(b.commands, other.Drain()...)
}

// Snapshot returns the current command count so callers can restore later.
func (b *CommandBuffer) Snapshot() int {
	return len(b.commands)
}

// Restore truncates the command buffer back to the provided snapshot.
func (b *CommandBuffer) Restore(snapshot int) {
	if snapshot < 0 {
		snapshot = 0
	}
	if snapshot >= len(b.commands) {
		return
	}
	b.commands = b.commands[:snapshot]
}

// CommandBufferPool reuses buffers to reduce allocations (spec §4.5 "pooled
// command buffers").
type CommandBufferPool struct {
	pool sync.Pool
}

// NewCommandBufferPool constructs a pool that returns fresh buffers.
func NewCommandBufferPool() *CommandBufferPool {
	p := &CommandBufferPool{}
	p.pool.New = func() any { return NewCommandBuffer() }
	return p
}

// Get retrieves a buffer from the pool.
func (p *CommandBufferPool) Get() *CommandBuffer {
	return p.pool.Get().(*CommandBuffer)
}

// Put returns a buffer to the pool after clearing it.
func (p *CommandBufferPool) Put(buf *CommandBuffer) {
	if buf == nil {
		return
	}
	buf.Drain()
	buf.nextPlaceholder = 0
	p.pool.Put(buf)
}

// CommandExecutionResult summarizes one buffer flush.
type CommandExecutionResult struct {
	Applied    int
	Failed     int
	RolledBack bool
	Errors     error
}

// executeCommandBuffer applies every command in buf in FIFO order against
// ctx. When rollbackOnError is true (the default, spec §4.6), the first
// failure unwinds every command applied so far by replaying its inverse in
// reverse order and the whole flush is reported as rolled back. Otherwise
// the failure is recorded and execution continues with the remaining
// commands (spec §4.6 "Otherwise, record the error and continue").
func executeCommandBuffer(ctx *commandExecContext, buf *CommandBuffer, rollbackOnError bool) CommandExecutionResult {
	cmds := buf.Drain()
	var result CommandExecutionResult
	journal := make([]Command, 0, len(cmds))

	for _, cmd := range cmds {
		if err := cmd.apply(ctx); err != nil {
			result.Failed++
			result.Errors = multierror.Append(result.Errors, err)
			if rollbackOnError {
				rollback(ctx, journal)
				result.RolledBack = true
				return result
			}
			continue
		}
		result.Applied++
		if inv := cmd.inverse(ctx); inv != nil {
			journal = append(journal, inv)
		}
	}
	return result
}

func rollback(ctx *commandExecContext, journal []Command) {
	for i := len(journal) - 1; i >= 0; i-- {
		if err := journal[i].apply(ctx); err != nil {
			// Best-effort unwind: a failed inverse leaves state partially
			// rolled back, which the caller observes via Errors on the
			// original result rather than here.
			continue
		}
	}
}
