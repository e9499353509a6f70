package ecs

import "sync"

// Message is an envelope published on the MessageBus: a topic plus an
// arbitrary payload, carrying the tick it was published on for consumers
// that replay history.
type Message struct {
	Topic   string
	Payload any
	Tick    uint64
}

// MessageHandler receives messages published on a subscribed topic.
type MessageHandler func(Message)

// MessageBus is a publish/subscribe channel with a bounded, per-topic
// history ring buffer, distinct from EventEmitter in that subscribers can
// also replay recent history on demand (spec §4.7). Grounded on the
// teacher's compositeObserver fan-out plus CommandBuffer's ring-buffer
// discipline (command_buffer.go Snapshot/Restore).
type MessageBus struct {
	mu sync.Mutex

	subscribers map[string]map[uint64]MessageHandler
	nextSubID   uint64

	historyLimit int
	history      map[string][]Message
}

// newMessageBus constructs a bus retaining up to historyLimit messages per
// topic (0 disables history retention).
func newMessageBus(historyLimit int) *MessageBus {
	return &MessageBus{
		subscribers:  make(map[string]map[uint64]MessageHandler),
		historyLimit: historyLimit,
		history:      make(map[string][]Message),
	}
}

// Subscribe registers handler for topic, returning a subscription usable
// with Unsubscribe.
func (b *MessageBus) Subscribe(topic string, handler MessageHandler) subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	set, ok := b.subscribers[topic]
	if !ok {
		set = make(map[uint64]MessageHandler)
		b.subscribers[topic] = set
	}
	set[id] = handler
	return subscription{name: topic, id: id}
}

// Unsubscribe removes a single subscription.
func (b *MessageBus) Unsubscribe(sub subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[sub.name]
	if !ok {
		return
	}
	delete(set, sub.id)
	if len(set) == 0 {
		delete(b.subscribers, sub.name)
	}
}

// Publish delivers payload to every current subscriber of topic and appends
// it to topic's bounded history.
func (b *MessageBus) Publish(topic string, payload any, tick uint64) {
	msg := Message{Topic: topic, Payload: payload, Tick: tick}

	b.mu.Lock()
	set := b.subscribers[topic]
	handlers := make([]MessageHandler, 0, len(set))
	for _, h := range set {
		handlers = append(handlers, h)
	}
	if b.historyLimit > 0 {
		hist := append(b.history[topic], msg)
		if len(hist) > b.historyLimit {
			hist = hist[len(hist)-b.historyLimit:]
		}
		b.history[topic] = hist
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

// History returns a snapshot of topic's retained message history, oldest
// first.
func (b *MessageBus) History(topic string) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	hist := b.history[topic]
	out := make([]Message, len(hist))
	copy(out, hist)
	return out
}

// ClearHistory discards retained history for topic.
func (b *MessageBus) ClearHistory(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.history, topic)
}
