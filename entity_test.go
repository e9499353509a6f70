package ecs

import "testing"

func TestEntityStoreCreateAndReclaim(t *testing.T) {
	s := newEntityStore()
	a := s.Create("alpha")
	b := s.Create("beta")

	if a.Identity() == b.Identity() {
		t.Fatalf("expected unique identities, got same: %v", a.Identity())
	}
	if s.Count() != 2 {
		t.Fatalf("expected 2 live entities, got %d", s.Count())
	}

	s.QueueFree(a)
	if !a.MarkedForDeletion() {
		t.Fatalf("expected entity marked for deletion")
	}
	if s.Count() != 2 {
		t.Fatalf("expected marked-but-not-reclaimed entity to still count, got %d", s.Count())
	}

	reclaimed := s.Cleanup()
	if len(reclaimed) != 1 {
		t.Fatalf("expected 1 reclaimed entity, got %d", len(reclaimed))
	}
	if s.Count() != 1 {
		t.Fatalf("expected 1 live entity after cleanup, got %d", s.Count())
	}
	if _, ok := s.GetByIdentity(a.Identity()); ok {
		t.Fatalf("expected reclaimed identity to be gone")
	}

	// Recycled index should carry a new generation.
	c := s.Create("gamma")
	if c.ID().Index() != a.ID().Index() {
		t.Fatalf("expected recycled index %d, got %d", a.ID().Index(), c.ID().Index())
	}
	if c.ID().Generation() == a.ID().Generation() {
		t.Fatalf("expected generation to increment on recycle")
	}
}

func TestEntityStoreRejectsStaleNumericHandle(t *testing.T) {
	s := newEntityStore()
	e := s.Create("")
	stale := e.ID()

	s.QueueFree(e)
	s.Cleanup()

	if s.IsAlive(stale) {
		t.Fatalf("stale numeric handle should not be reported alive")
	}
	if _, ok := s.GetByNumeric(stale); ok {
		t.Fatalf("expected stale generation lookup to fail")
	}
}

func TestEntityStoreNameFirstRegistrationWins(t *testing.T) {
	s := newEntityStore()
	first := s.Create("hero")
	second := s.Create("hero")

	found, ok := s.GetByName("hero")
	if !ok {
		t.Fatalf("expected name lookup to succeed")
	}
	if found.Identity() != first.Identity() {
		t.Fatalf("expected first registration to win the name index")
	}
	if second.Name() != "" {
		t.Fatalf("expected second entity to keep an empty name, got %q", second.Name())
	}
}

func TestEntityStoreTagIndex(t *testing.T) {
	s := newEntityStore()
	e := s.Create("")

	if !s.AddTag(e, "enemy") {
		t.Fatalf("expected tag add to succeed")
	}
	if s.AddTag(e, "enemy") {
		t.Fatalf("expected duplicate tag add to be a no-op")
	}
	tagged := s.GetByTag("enemy")
	if len(tagged) != 1 || tagged[0].Identity() != e.Identity() {
		t.Fatalf("expected entity indexed under tag")
	}

	if !s.RemoveTag(e, "enemy") {
		t.Fatalf("expected tag removal to succeed")
	}
	if len(s.GetByTag("enemy")) != 0 {
		t.Fatalf("expected tag index emptied after removal")
	}
}

func TestIdentityZeroValue(t *testing.T) {
	var id Identity
	if !id.IsZero() {
		t.Fatalf("expected zero-value identity to report IsZero")
	}
	if got := newIdentity(); got.IsZero() {
		t.Fatalf("expected freshly minted identity to be non-zero")
	}
}
