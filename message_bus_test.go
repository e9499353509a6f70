package ecs

import "testing"

func TestMessageBusPublishDeliversToSubscribers(t *testing.T) {
	b := newMessageBus(4)
	var received Message
	b.Subscribe("damage", func(m Message) { received = m })

	b.Publish("damage", 42, 7)
	if received.Payload != 42 || received.Tick != 7 || received.Topic != "damage" {
		t.Fatalf("unexpected message delivered: %+v", received)
	}
}

func TestMessageBusUnsubscribeStopsDelivery(t *testing.T) {
	b := newMessageBus(4)
	var count int
	sub := b.Subscribe("x", func(Message) { count++ })
	b.Publish("x", nil, 0)
	b.Unsubscribe(sub)
	b.Publish("x", nil, 1)
	if count != 1 {
		t.Fatalf("expected exactly 1 delivery before unsubscribe, got %d", count)
	}
}

func TestMessageBusHistoryBounded(t *testing.T) {
	b := newMessageBus(2)
	b.Publish("topic", "a", 1)
	b.Publish("topic", "b", 2)
	b.Publish("topic", "c", 3)

	hist := b.History("topic")
	if len(hist) != 2 {
		t.Fatalf("expected bounded history of 2, got %d", len(hist))
	}
	if hist[0].Payload != "b" || hist[1].Payload != "c" {
		t.Fatalf("expected oldest entry dropped, got %+v", hist)
	}
}

func TestMessageBusClearHistory(t *testing.T) {
	b := newMessageBus(4)
	b.Publish("topic", "a", 1)
	b.ClearHistory("topic")
	if len(b.History("topic")) != 0 {
		t.Fatalf("expected history cleared")
	}
}

func TestMessageBusZeroHistoryLimitRetainsNothing(t *testing.T) {
	b := newMessageBus(0)
	b.Publish("topic", "a", 1)
	if len(b.History("topic")) != 0 {
		t.Fatalf("expected no retained history when limit is 0")
	}
}
