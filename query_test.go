package ecs

import "testing"

func TestQueryMatchesEntitiesByComponentAndTag(t *testing.T) {
	engine := NewEngine()
	posType, err := engine.Components().RegisterComponent("position", func(args []Value) (any, error) {
		return struct{ X, Y int }{}, nil
	})
	if err != nil {
		t.Fatalf("register component: %v", err)
	}

	q := engine.Queries().CreateQuery(QueryFilter{All: []TypeID{posType}, Tags: []string{"visible"}})

	buf := NewCommandBuffer()
	buf.Spawn("a").WithTag("visible").WithComponent(posType, struct{ X, Y int }{1, 1})
	buf.Spawn("b").WithComponent(posType, struct{ X, Y int }{2, 2}) // missing the tag
	if result := engine.Apply(buf); result.RolledBack {
		t.Fatalf("apply: %v", result.Errors)
	}

	matches := q.Matches()
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
}

func TestQueryNoneExcludesMatchingEntities(t *testing.T) {
	engine := NewEngine()
	alive, _ := engine.Components().RegisterComponent("alive", func(args []Value) (any, error) { return true, nil })
	dead, _ := engine.Components().RegisterComponent("dead", func(args []Value) (any, error) { return true, nil })

	q := engine.Queries().CreateQuery(QueryFilter{All: []TypeID{alive}, None: []TypeID{dead}})

	buf := NewCommandBuffer()
	buf.Spawn("zombie").WithComponent(alive, true).WithComponent(dead, true)
	buf.Spawn("hero").WithComponent(alive, true)
	engine.Apply(buf)

	if q.Len() != 1 {
		t.Fatalf("expected 1 match excluding the dead entity, got %d", q.Len())
	}
}

func TestQueryEvictsEntityOnDespawn(t *testing.T) {
	engine := NewEngine()
	typ, _ := engine.Components().RegisterComponent("tag1", func(args []Value) (any, error) { return nil, nil })
	q := engine.Queries().CreateQuery(QueryFilter{All: []TypeID{typ}})

	buf := NewCommandBuffer()
	buf.Spawn("e").WithComponent(typ, nil)
	engine.Apply(buf)
	if q.Len() != 1 {
		t.Fatalf("expected 1 match before despawn, got %d", q.Len())
	}

	e, _ := engine.Entities().GetByName("e")
	buf = NewCommandBuffer()
	buf.Despawn(RefTo(e.Identity()))
	engine.Apply(buf)
	engine.cleanup()

	if q.Len() != 0 {
		t.Fatalf("expected match evicted after despawn+cleanup, got %d", q.Len())
	}
}

func TestQueryTransactionBuffersUpdates(t *testing.T) {
	engine := NewEngine()
	typ, _ := engine.Components().RegisterComponent("marker", func(args []Value) (any, error) { return nil, nil })
	q := engine.Queries().CreateQuery(QueryFilter{All: []TypeID{typ}})

	if err := engine.Queries().BeginTransaction(); err != nil {
		t.Fatalf("begin transaction: %v", err)
	}

	buf := NewCommandBuffer()
	buf.Spawn("e").WithComponent(typ, nil)
	engine.Apply(buf)

	if q.Len() != 0 {
		t.Fatalf("expected query not yet swept during open transaction, got %d", q.Len())
	}

	if err := engine.Queries().CommitTransaction(); err != nil {
		t.Fatalf("commit transaction: %v", err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected query swept after commit, got %d", q.Len())
	}
}
