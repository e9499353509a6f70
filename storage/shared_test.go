package storage

import (
	"testing"

	ecs "github.com/nullforge/ecs"
)

type gameStats struct {
	Health       int
	AttackDamage int
	Defense      int
}

func TestSharedStoreBasicOperations(t *testing.T) {
	strategy := NewSharedStrategy()
	store := strategy.NewStore(1)

	e1 := newTestIdentity()
	e2 := newTestIdentity()
	stats := gameStats{Health: 100, AttackDamage: 25, Defense: 10}

	if err := store.Set(e1, stats); err != nil {
		t.Fatalf("set e1: %v", err)
	}
	if err := store.Set(e2, stats); err != nil {
		t.Fatalf("set e2: %v", err)
	}

	if !store.Has(e1) || !store.Has(e2) {
		t.Fatalf("expected both entities to have the component")
	}

	v1, ok := store.Get(e1)
	if !ok || v1.(gameStats).Health != 100 {
		t.Fatalf("unexpected e1 value: %#v ok=%v", v1, ok)
	}
	v2, ok := store.Get(e2)
	if !ok || v2.(gameStats).AttackDamage != 25 {
		t.Fatalf("unexpected e2 value: %#v ok=%v", v2, ok)
	}
}

func TestSharedStoreDeduplicatesEqualValues(t *testing.T) {
	strategy := NewSharedStrategy()
	store := strategy.NewStore(1).(*sharedStore)

	zombie1, zombie2, player := newTestIdentity(), newTestIdentity(), newTestIdentity()
	zombieStats := gameStats{Health: 50, AttackDamage: 10, Defense: 5}
	playerStats := gameStats{Health: 100, AttackDamage: 25, Defense: 15}

	store.Set(zombie1, zombieStats)
	store.Set(zombie2, zombieStats)
	store.Set(player, playerStats)

	stats := store.Stats()
	if stats.EntityCount != 3 {
		t.Fatalf("expected 3 entities, got %d", stats.EntityCount)
	}
	if stats.UniqueValueCount != 2 {
		t.Fatalf("expected 2 unique backing values, got %d", stats.UniqueValueCount)
	}
	if stats.SharingRatio != 1.5 {
		t.Fatalf("expected sharing ratio 1.5, got %.2f", stats.SharingRatio)
	}
}

func TestSharedStoreRemoveDecrementsRefCount(t *testing.T) {
	strategy := NewSharedStrategy()
	store := strategy.NewStore(1).(*sharedStore)

	a, b := newTestIdentity(), newTestIdentity()
	shared := gameStats{Health: 75}
	store.Set(a, shared)
	store.Set(b, shared)

	if stats := store.Stats(); stats.UniqueValueCount != 1 {
		t.Fatalf("expected 1 shared backing value, got %d", stats.UniqueValueCount)
	}

	store.Remove(a)
	if stats := store.Stats(); stats.UniqueValueCount != 1 {
		t.Fatalf("expected backing value to survive while b still refs it, got %d", stats.UniqueValueCount)
	}

	store.Remove(b)
	if stats := store.Stats(); stats.UniqueValueCount != 0 {
		t.Fatalf("expected backing value freed once ref count hits zero, got %d", stats.UniqueValueCount)
	}
}

func TestSharedStoreClear(t *testing.T) {
	store := NewSharedStrategy().NewStore(1)
	store.Set(newTestIdentity(), gameStats{Health: 1})
	store.(*sharedStore).Clear()
	if store.Len() != 0 {
		t.Fatalf("expected empty store after Clear, got %d", store.Len())
	}
}
