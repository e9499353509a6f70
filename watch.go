package ecs

import "time"

// watchExecContext is the ExecutionContext handed to a system's OnWatch
// callback, fired outside the normal scheduled tick in reaction to an
// EventEmitter notification. Any commands queued against it are applied
// immediately after the callback returns, since a watch event has no
// enclosing tick to defer them to (spec §4.5 "watched ... callbacks").
type watchExecContext struct {
	engine *Engine
	tick   uint64
	buf    *CommandBuffer
}

func (c *watchExecContext) Engine() *Engine { return c.engine }
func (c *watchExecContext) Commands() *CommandBuffer {
	if c.buf == nil {
		c.buf = NewCommandBuffer()
	}
	return c.buf
}
func (c *watchExecContext) TimeDelta() time.Duration { return 0 }
func (c *watchExecContext) TickIndex() uint64        { return c.tick }
func (c *watchExecContext) Logger() Logger           { return c.engine.logger }

// wireSystemWatches subscribes desc's OnWatch callback (if any) to the
// engine's EventEmitter for its declared watched components, singletons,
// and/or hierarchy edges (spec §4.5 "watched component/singleton/hierarchy
// filter sets and their callbacks"). Called once per system at registration
// time.
func (e *Engine) wireSystemWatches(desc SystemDescriptor) {
	if desc.OnWatch == nil {
		return
	}

	invoke := func(ev WatchEvent) {
		exec := &watchExecContext{engine: e, tick: e.scheduler.TickIndex()}
		desc.OnWatch(exec, ev)
		if exec.buf != nil && exec.buf.Len() > 0 {
			e.Apply(exec.buf)
		}
	}

	if len(desc.WatchComponents) > 0 {
		watched := make(map[TypeID]struct{}, len(desc.WatchComponents))
		for _, t := range desc.WatchComponents {
			watched[t] = struct{}{}
		}
		e.events.On("component_changed", func(payload any) {
			ev, ok := payload.(WatchEvent)
			if !ok {
				return
			}
			if _, ok := watched[ev.Type]; !ok {
				return
			}
			invoke(ev)
		})
	}

	if len(desc.WatchSingletons) > 0 {
		watched := make(map[TypeID]struct{}, len(desc.WatchSingletons))
		for _, t := range desc.WatchSingletons {
			watched[t] = struct{}{}
		}
		for _, name := range []string{"singleton_set", "singleton_removed"} {
			name := name
			e.events.On(name, func(payload any) {
				t, ok := payload.(TypeID)
				if !ok {
					return
				}
				if _, ok := watched[t]; !ok {
					return
				}
				invoke(WatchEvent{Kind: name, Type: t})
			})
		}
	}

	if desc.WatchHierarchy {
		for _, name := range []string{"parent_changed", "child_added", "child_removed"} {
			e.events.On(name, func(payload any) {
				ev, ok := payload.(WatchEvent)
				if !ok {
					return
				}
				invoke(ev)
			})
		}
	}
}
