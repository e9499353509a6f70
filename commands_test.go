package ecs

import "testing"

func TestSpawnCommandCreatesEntity(t *testing.T) {
	engine := NewEngine()
	buf := NewCommandBuffer()
	buf.Spawn("hero")

	result := engine.Apply(buf)
	if result.RolledBack {
		t.Fatalf("apply failed: %v", result.Errors)
	}
	if engine.Entities().Count() != 1 {
		t.Fatalf("expected 1 entity, got %d", engine.Entities().Count())
	}
	if _, ok := engine.Entities().GetByName("hero"); !ok {
		t.Fatalf("expected entity registered under its name")
	}
}

func TestDespawnCommandQueuesDeletion(t *testing.T) {
	engine := NewEngine()
	buf := NewCommandBuffer()
	buf.Spawn("target")
	engine.Apply(buf)

	e, ok := engine.Entities().GetByName("target")
	if !ok {
		t.Fatalf("expected entity to exist")
	}

	buf = NewCommandBuffer()
	buf.Despawn(RefTo(e.Identity()))
	if result := engine.Apply(buf); result.RolledBack {
		t.Fatalf("apply failed: %v", result.Errors)
	}
	if !e.MarkedForDeletion() {
		t.Fatalf("expected entity marked for deletion")
	}

	engine.Entities().Cleanup()
	if _, ok := engine.Entities().GetByIdentity(e.Identity()); ok {
		t.Fatalf("expected entity reclaimed after cleanup")
	}
}

func TestAddRemoveComponentCommands(t *testing.T) {
	engine := NewEngine()
	typ, err := engine.Components().RegisterComponent("counter", func(args []Value) (any, error) {
		return 0, nil
	})
	if err != nil {
		t.Fatalf("register component: %v", err)
	}

	buf := NewCommandBuffer()
	ref := buf.Spawn("widget").Ref()
	buf.AddComponent(ref, typ, 99)
	if result := engine.Apply(buf); result.RolledBack {
		t.Fatalf("apply add: %v", result.Errors)
	}

	e, ok := engine.Entities().GetByName("widget")
	if !ok {
		t.Fatalf("expected entity to exist")
	}
	value, ok := engine.getComponentRaw(e.Identity(), typ)
	if !ok || value.(int) != 99 {
		t.Fatalf("unexpected component state: value=%v, ok=%v", value, ok)
	}

	buf = NewCommandBuffer()
	buf.RemoveComponent(RefTo(e.Identity()), typ)
	if result := engine.Apply(buf); result.RolledBack {
		t.Fatalf("apply remove: %v", result.Errors)
	}
	if _, ok := engine.getComponentRaw(e.Identity(), typ); ok {
		t.Fatalf("component should be removed")
	}
}

func TestAddRemoveTagCommands(t *testing.T) {
	engine := NewEngine()
	buf := NewCommandBuffer()
	ref := buf.Spawn("npc").Ref()
	buf.AddTag(ref, "merchant")
	engine.Apply(buf)

	e, _ := engine.Entities().GetByName("npc")
	if !e.HasTag("merchant") {
		t.Fatalf("expected merchant tag")
	}

	buf = NewCommandBuffer()
	buf.RemoveTag(RefTo(e.Identity()), "merchant")
	engine.Apply(buf)
	if e.HasTag("merchant") {
		t.Fatalf("expected merchant tag removed")
	}
}

func TestSetParentCommandBuildsHierarchy(t *testing.T) {
	engine := NewEngine()
	buf := NewCommandBuffer()
	parent := buf.Spawn("parent").Ref()
	child := buf.Spawn("child").WithParent(parent).Ref()
	_ = child

	if result := engine.Apply(buf); result.RolledBack {
		t.Fatalf("apply: %v", result.Errors)
	}

	p, _ := engine.Entities().GetByName("parent")
	c, _ := engine.Entities().GetByName("child")

	got, ok := engine.Hierarchy().GetParent(c.Identity())
	if !ok || got != p.Identity() {
		t.Fatalf("expected child reparented under placeholder-resolved parent")
	}
}

func TestAddComponentRejectedByValidatorRollsBack(t *testing.T) {
	engine := NewEngine()
	typ, err := engine.Components().RegisterComponent("health", func(args []Value) (any, error) {
		return 0, nil
	})
	if err != nil {
		t.Fatalf("register component: %v", err)
	}
	if err := engine.Components().RegisterValidator(typ, func(value any) (bool, string) {
		return false, "health must never be negative"
	}); err != nil {
		t.Fatalf("register validator: %v", err)
	}

	buf := NewCommandBuffer()
	ref := buf.Spawn("zombie").Ref()
	buf.AddComponent(ref, typ, -5)

	result := engine.Apply(buf)
	if !result.RolledBack {
		t.Fatalf("expected rollback when validator rejects the component")
	}
	if engine.Entities().Count() != 0 {
		t.Fatalf("expected the spawn to be undone alongside the rejected add")
	}
}
