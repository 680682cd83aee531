package scheduler

import "testing"

func TestMemoryGraph_ReadyAfterParentsSettle(t *testing.T) {
	g := NewMemoryGraph()
	g.Add("a", nil)
	g.Add("b", nil)
	g.Add("c", []string{"a", "b"})

	if !g.MarkReady("a") {
		t.Error("expected root task to be ready")
	}
	if g.MarkReady("c") {
		t.Error("expected c to wait on its parents")
	}
	if got := g.Unresolved("c"); got != 2 {
		t.Errorf("expected 2 unresolved parents, got %d", got)
	}

	children, first := g.MarkSettled("a")
	if !first {
		t.Fatal("expected first settlement of a")
	}
	if len(children) != 1 || children[0] != "c" {
		t.Errorf("expected children [c], got %v", children)
	}
	if g.MarkReady("c") {
		t.Error("expected c to still wait on b")
	}

	g.MarkSettled("b")
	if !g.MarkReady("c") {
		t.Error("expected c to be ready after both parents settled")
	}
}

func TestMemoryGraph_SettleIsIdempotent(t *testing.T) {
	g := NewMemoryGraph()
	g.Add("a", nil)
	g.Add("b", []string{"a"})

	if _, first := g.MarkSettled("a"); !first {
		t.Fatal("expected first settlement")
	}
	children, first := g.MarkSettled("a")
	if first {
		t.Error("expected duplicate settlement to report first=false")
	}
	if children != nil {
		t.Errorf("expected no children on duplicate settlement, got %v", children)
	}
}

func TestMemoryGraph_AddAfterParentSettled(t *testing.T) {
	g := NewMemoryGraph()
	g.Add("a", nil)
	g.MarkSettled("a")

	g.Add("b", []string{"a", "a"})
	if got := g.Unresolved("b"); got != 0 {
		t.Errorf("expected settled parent not to count, got %d", got)
	}
	if !g.MarkReady("b") {
		t.Error("expected b to be ready")
	}
}

func TestMemoryGraph_Forget(t *testing.T) {
	g := NewMemoryGraph()
	g.Add("a", nil)
	g.Add("b", []string{"a"})
	g.MarkSettled("a")

	g.Forget([]string{"a"})
	if _, first := g.MarkSettled("a"); !first {
		t.Error("expected forgotten task to be settleable again")
	}
}
