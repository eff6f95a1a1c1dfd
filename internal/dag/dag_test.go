package dag_test

import (
	"errors"
	"testing"

	"github.com/flowcore/automation-engine/internal/dag"
)

func nodes(ids ...string) []dag.Node {
	out := make([]dag.Node, len(ids))
	for i, id := range ids {
		out[i] = dag.Node{ID: id}
	}
	return out
}

func edges(pairs ...[2]string) []dag.Edge {
	out := make([]dag.Edge, len(pairs))
	for i, p := range pairs {
		out[i] = dag.Edge{From: p[0], To: p[1]}
	}
	return out
}

func index(order []string) map[string]int {
	idx := make(map[string]int, len(order))
	for i, id := range order {
		idx[id] = i
	}
	return idx
}

func TestValidate_LinearChain(t *testing.T) {
	g := dag.Graph{
		Nodes: nodes("a", "b", "c"),
		Edges: edges([2]string{"a", "b"}, [2]string{"b", "c"}),
	}
	order, err := dag.Validate(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestValidate_Diamond(t *testing.T) {
	g := dag.Graph{
		Nodes: nodes("a", "b", "c", "d"),
		Edges: edges([2]string{"a", "b"}, [2]string{"a", "c"}, [2]string{"b", "d"}, [2]string{"c", "d"}),
	}
	order, err := dag.Validate(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 4 {
		t.Fatalf("expected 4 nodes in order, got %d", len(order))
	}
	idx := index(order)
	if idx["a"] != 0 {
		t.Errorf("expected a first, got position %d", idx["a"])
	}
	if idx["d"] != 3 {
		t.Errorf("expected d last, got position %d", idx["d"])
	}
	if idx["b"] >= idx["d"] || idx["c"] >= idx["d"] {
		t.Errorf("expected b and c before d: %v", idx)
	}
}

func TestValidate_CycleDetected(t *testing.T) {
	g := dag.Graph{
		Nodes: nodes("a", "b", "c"),
		Edges: edges([2]string{"a", "b"}, [2]string{"b", "c"}, [2]string{"c", "a"}),
	}
	_, err := dag.Validate(g)
	var cycleErr *dag.CycleDetectedError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
}

func TestValidate_SelfLoopIsCycle(t *testing.T) {
	g := dag.Graph{
		Nodes: nodes("a"),
		Edges: edges([2]string{"a", "a"}),
	}
	_, err := dag.Validate(g)
	var cycleErr *dag.CycleDetectedError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
}

func TestValidate_DuplicateNodeID(t *testing.T) {
	g := dag.Graph{Nodes: nodes("a", "b", "a")}
	_, err := dag.Validate(g)
	var dupErr *dag.DuplicateNodeIDError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateNodeIDError, got %v", err)
	}
	if dupErr.NodeID != "a" {
		t.Errorf("expected duplicate id %q, got %q", "a", dupErr.NodeID)
	}
}

func TestValidate_UnknownNodeReference_FromCheckedFirst(t *testing.T) {
	g := dag.Graph{
		Nodes: nodes("a"),
		Edges: edges([2]string{"ghost", "a"}),
	}
	_, err := dag.Validate(g)
	var refErr *dag.UnknownNodeReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected UnknownNodeReferenceError, got %v", err)
	}
	if refErr.Side != "from" || refErr.NodeID != "ghost" {
		t.Errorf("expected from-side error for %q, got %+v", "ghost", refErr)
	}
}

func TestValidate_UnknownNodeReference_ToSide(t *testing.T) {
	g := dag.Graph{
		Nodes: nodes("a"),
		Edges: edges([2]string{"a", "ghost"}),
	}
	_, err := dag.Validate(g)
	var refErr *dag.UnknownNodeReferenceError
	if !errors.As(err, &refErr) {
		t.Fatalf("expected UnknownNodeReferenceError, got %v", err)
	}
	if refErr.Side != "to" || refErr.NodeID != "ghost" {
		t.Errorf("expected to-side error for %q, got %+v", "ghost", refErr)
	}
}

func TestValidate_EmptyGraph(t *testing.T) {
	order, err := dag.Validate(dag.Graph{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("expected empty order, got %v", order)
	}
}

func TestValidate_IsolatedNodesIncluded(t *testing.T) {
	g := dag.Graph{Nodes: nodes("a", "b", "c")}
	order, err := dag.Validate(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 3 {
		t.Errorf("expected 3 isolated nodes in order, got %d", len(order))
	}
}

func TestValidate_DuplicateEdgesAllowed(t *testing.T) {
	g := dag.Graph{
		Nodes: nodes("a", "b"),
		Edges: edges([2]string{"a", "b"}, [2]string{"a", "b"}),
	}
	order, err := dag.Validate(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(order))
	}
}
