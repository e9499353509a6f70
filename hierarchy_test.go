package ecs

import "testing"

func TestHierarchySetParentAndChildren(t *testing.T) {
	entities := newEntityStore()
	h := newHierarchy(entities, nil)

	parent := entities.Create("parent")
	child := entities.Create("child")

	if err := h.SetParent(child.Identity(), parent.Identity()); err != nil {
		t.Fatalf("set parent: %v", err)
	}

	got, ok := h.GetParent(child.Identity())
	if !ok || got != parent.Identity() {
		t.Fatalf("expected child parented under parent")
	}
	children := h.GetChildren(parent.Identity())
	if len(children) != 1 || children[0] != child.Identity() {
		t.Fatalf("expected parent to list child")
	}
}

func TestHierarchyRejectsCycle(t *testing.T) {
	entities := newEntityStore()
	h := newHierarchy(entities, nil)

	a := entities.Create("a")
	b := entities.Create("b")
	c := entities.Create("c")

	if err := h.SetParent(b.Identity(), a.Identity()); err != nil {
		t.Fatalf("set parent a->b: %v", err)
	}
	if err := h.SetParent(c.Identity(), b.Identity()); err != nil {
		t.Fatalf("set parent b->c: %v", err)
	}

	if err := h.SetParent(a.Identity(), c.Identity()); err != ErrCyclicHierarchy {
		t.Fatalf("expected ErrCyclicHierarchy, got %v", err)
	}
	if err := h.SetParent(a.Identity(), a.Identity()); err != ErrCyclicHierarchy {
		t.Fatalf("expected self-parent to be rejected, got %v", err)
	}
}

func TestHierarchyDetachReparentsChildrenToGrandparent(t *testing.T) {
	entities := newEntityStore()
	h := newHierarchy(entities, nil)

	grandparent := entities.Create("gp")
	parent := entities.Create("p")
	child := entities.Create("c")

	if err := h.SetParent(parent.Identity(), grandparent.Identity()); err != nil {
		t.Fatalf("set parent: %v", err)
	}
	if err := h.SetParent(child.Identity(), parent.Identity()); err != nil {
		t.Fatalf("set parent: %v", err)
	}

	h.Detach(parent.Identity())

	got, ok := h.GetParent(child.Identity())
	if !ok || got != grandparent.Identity() {
		t.Fatalf("expected child reparented to grandparent after detach, got %v ok=%v", got, ok)
	}
	if len(h.GetChildren(parent.Identity())) != 0 {
		t.Fatalf("expected detached entity to have no children left")
	}
}

func TestHierarchyAncestryHelpers(t *testing.T) {
	entities := newEntityStore()
	h := newHierarchy(entities, nil)

	root := entities.Create("root")
	mid := entities.Create("mid")
	leaf := entities.Create("leaf")

	h.SetParent(mid.Identity(), root.Identity())
	h.SetParent(leaf.Identity(), mid.Identity())

	if h.GetDepth(leaf.Identity()) != 2 {
		t.Fatalf("expected depth 2, got %d", h.GetDepth(leaf.Identity()))
	}
	if h.GetRoot(leaf.Identity()) != root.Identity() {
		t.Fatalf("expected root of leaf to be root entity")
	}
	if !h.IsAncestorOf(root.Identity(), leaf.Identity()) {
		t.Fatalf("expected root to be an ancestor of leaf")
	}
	if !h.IsDescendantOf(leaf.Identity(), root.Identity()) {
		t.Fatalf("expected leaf to be a descendant of root")
	}
	descendants := h.GetDescendants(root.Identity())
	if len(descendants) != 2 {
		t.Fatalf("expected 2 descendants of root, got %d", len(descendants))
	}
}
