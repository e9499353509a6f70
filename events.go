package ecs

import (
	"sort"
	"sync"
)

// EventHandler receives a payload published under a given event name.
type EventHandler func(payload any)

// subscription is an opaque handle returned by EventEmitter.On, used to
// Unsubscribe a single handler.
type subscription struct {
	name string
	id   uint64
}

// EventEmitter is a named multicast dispatcher: any number of handlers may
// subscribe to a name, and Emit fans a payload out to every subscriber of
// that name synchronously, in subscription order. Modeled on the teacher's
// compositeObserver fan-out (observability.go), generalized from a single
// fixed event (WorkGroupCompleted) to arbitrary named events.
type EventEmitter struct {
	mu        sync.Mutex
	handlers  map[string]map[uint64]EventHandler
	nextID    uint64
}

func newEventEmitter() *EventEmitter {
	return &EventEmitter{handlers: make(map[string]map[uint64]EventHandler)}
}

// On subscribes handler to name, returning a subscription usable with Off.
func (e *EventEmitter) On(name string, handler EventHandler) subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	set, ok := e.handlers[name]
	if !ok {
		set = make(map[uint64]EventHandler)
		e.handlers[name] = set
	}
	set[id] = handler
	return subscription{name: name, id: id}
}

// Off removes a single subscription.
func (e *EventEmitter) Off(sub subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.handlers[sub.name]
	if !ok {
		return
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(e.handlers, sub.name)
	}
}

// OffAll removes every handler registered for name.
func (e *EventEmitter) OffAll(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, name)
}

// Emit synchronously invokes every handler subscribed to name with payload.
// Handlers are copied out under lock first so a handler may subscribe or
// unsubscribe during dispatch without deadlocking or mutating a map being
// ranged over.
func (e *EventEmitter) Emit(name string, payload any) {
	e.mu.Lock()
	set := e.handlers[name]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	handlers := make([]EventHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, set[id])
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

// ListenerCount reports how many handlers are subscribed to name.
func (e *EventEmitter) ListenerCount(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers[name])
}
