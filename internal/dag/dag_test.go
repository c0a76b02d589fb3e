package dag

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
)

// nodeSpec describes a node for buildDAG: (id, weight, deps...). The
// creation sequence is the entry's position in the list.
type nodeSpec struct {
	id     string
	weight int
	deps   []string
}

func buildDAG(t *testing.T, specs []nodeSpec) *DAG {
	t.Helper()
	d := New()
	for i, s := range specs {
		if err := d.AddNode(s.id, i, s.weight); err != nil {
			t.Fatalf("AddNode(%q): %v", s.id, err)
		}
	}
	for _, s := range specs {
		for _, dep := range s.deps {
			if err := d.AddEdge(s.id, dep); err != nil {
				t.Fatalf("AddEdge(%q, %q): %v", s.id, dep, err)
			}
		}
	}
	return d
}

// validTopologicalOrder checks that every dependency appears before
// its dependent in the ordering.
func validTopologicalOrder(d *DAG, order []string) bool {
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for id, deps := range d.adjacency {
		for dep := range deps {
			if pos[dep] >= pos[id] {
				return false
			}
		}
	}
	return true
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNew(t *testing.T) {
	t.Parallel()
	d := New()
	if d.Len() != 0 {
		t.Errorf("new DAG has %d nodes, want 0", d.Len())
	}
	if nodes := d.Nodes(); len(nodes) != 0 {
		t.Errorf("new DAG Nodes() = %v, want empty", nodes)
	}
}

func TestAddNode(t *testing.T) {
	t.Parallel()

	t.Run("basic add", func(t *testing.T) {
		t.Parallel()
		d := New()
		if err := d.AddNode("a", 0, 4); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
		n := d.Node("a")
		if n == nil {
			t.Fatal("Node(a) returned nil")
		}
		if n.Weight != 4 {
			t.Errorf("Weight = %d, want 4", n.Weight)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 0, 1)
		err := d.AddNode("a", 1, 2)
		if !errors.Is(err, ErrDuplicateNode) {
			t.Errorf("got %v, want ErrDuplicateNode", err)
		}
	})

	t.Run("nodes in creation order", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("zeta", 0, 1)
		_ = d.AddNode("alpha", 1, 1)
		_ = d.AddNode("mid", 2, 1)
		if got, want := d.Nodes(), []string{"zeta", "alpha", "mid"}; !equalIDs(got, want) {
			t.Errorf("Nodes() = %v, want %v", got, want)
		}
	})
}

func TestAddEdge(t *testing.T) {
	t.Parallel()

	t.Run("self edge", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 0, 1)
		if err := d.AddEdge("a", "a"); !errors.Is(err, ErrSelfEdge) {
			t.Errorf("got %v, want ErrSelfEdge", err)
		}
	})

	t.Run("missing nodes", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 0, 1)
		if err := d.AddEdge("a", "b"); !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("got %v, want ErrNodeNotFound", err)
		}
		if err := d.AddEdge("b", "a"); !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("got %v, want ErrNodeNotFound", err)
		}
	})

	t.Run("duplicate edge is no-op", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 0, 1)
		_ = d.AddNode("b", 1, 1)
		_ = d.AddEdge("a", "b")
		if err := d.AddEdge("a", "b"); err != nil {
			t.Errorf("duplicate AddEdge returned error: %v", err)
		}
		if got := d.Dependencies("a"); !equalIDs(got, []string{"b"}) {
			t.Errorf("Dependencies(a) = %v, want [b]", got)
		}
	})

	t.Run("cycle rejected and graph unchanged", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 0, 1)
		_ = d.AddNode("b", 1, 1)
		_ = d.AddNode("c", 2, 1)
		_ = d.AddEdge("a", "b")
		_ = d.AddEdge("b", "c")
		err := d.AddEdge("c", "a")
		if !errors.Is(err, ErrCycle) {
			t.Errorf("got %v, want ErrCycle", err)
		}
		if d.HasEdge("c", "a") {
			t.Error("rejected edge c → a was committed")
		}
	})
}

func TestRemoveEdge(t *testing.T) {
	t.Parallel()
	d := buildDAG(t, []nodeSpec{
		{"a", 1, nil},
		{"b", 1, []string{"a"}},
	})
	d.RemoveEdge("b", "a")
	if d.HasEdge("b", "a") {
		t.Error("edge b → a still present")
	}
	if deps := d.Dependents("a"); len(deps) != 0 {
		t.Errorf("Dependents(a) = %v, want empty", deps)
	}
	// Removing a missing edge is harmless.
	d.RemoveEdge("b", "zzz")
}

func TestRemove(t *testing.T) {
	t.Parallel()

	t.Run("remove middle node", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"c", 1, nil},
			{"b", 1, []string{"c"}},
			{"a", 1, []string{"b"}},
		})
		if err := d.Remove("b"); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		if d.Len() != 2 {
			t.Errorf("Len() = %d, want 2", d.Len())
		}
		if len(d.adjacency["a"]) != 0 {
			t.Errorf("node a still has deps: %v", d.adjacency["a"])
		}
		if len(d.reverse["c"]) != 0 {
			t.Errorf("node c still has dependents: %v", d.reverse["c"])
		}
	})

	t.Run("remove nonexistent", func(t *testing.T) {
		t.Parallel()
		d := New()
		if err := d.Remove("x"); !errors.Is(err, ErrNodeNotFound) {
			t.Errorf("got %v, want ErrNodeNotFound", err)
		}
	})
}

func TestWouldCreateCycle(t *testing.T) {
	t.Parallel()
	// b and c depend on a; d depends on b and c.
	d := buildDAG(t, []nodeSpec{
		{"a", 1, nil},
		{"b", 1, []string{"a"}},
		{"c", 1, []string{"a"}},
		{"d", 1, []string{"b", "c"}},
		{"e", 1, nil},
	})

	tests := []struct {
		name     string
		from, to string
		want     bool
	}{
		{"self", "a", "a", true},
		{"direct back edge", "a", "b", true},
		{"transitive back edge", "a", "d", true},
		{"forward shortcut", "d", "a", false},
		{"sibling", "b", "c", false},
		{"isolated node", "e", "d", false},
		{"into isolated node", "a", "e", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := d.WouldCreateCycle(tt.from, tt.to); got != tt.want {
				t.Errorf("WouldCreateCycle(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

// reachable is a brute-force transitive closure over forward edges used to
// cross-check WouldCreateCycle.
func reachable(d *DAG, src, dst string) bool {
	seen := map[string]bool{src: true}
	frontier := []string{src}
	for len(frontier) > 0 {
		var next []string
		for _, cur := range frontier {
			for dep := range d.adjacency[cur] {
				if dep == dst {
					return true
				}
				if !seen[dep] {
					seen[dep] = true
					next = append(next, dep)
				}
			}
		}
		frontier = next
	}
	return false
}

func TestWouldCreateCycle_MatchesBruteForce(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 3 + rng.Intn(12)
		d := New()
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%02d", i)
			_ = d.AddNode(ids[i], i, 1)
		}
		// Edges only from higher to lower index keep the graph acyclic.
		for i := 1; i < n; i++ {
			for j := 0; j < i; j++ {
				if rng.Float64() < 0.3 {
					if err := d.AddEdge(ids[i], ids[j]); err != nil {
						t.Fatalf("trial %d: AddEdge(%s, %s): %v", trial, ids[i], ids[j], err)
					}
				}
			}
		}

		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				from, to := ids[i], ids[j]
				want := from == to || reachable(d, to, from)
				if got := d.WouldCreateCycle(from, to); got != want {
					t.Fatalf("trial %d: WouldCreateCycle(%s, %s) = %v, brute force %v",
						trial, from, to, got, want)
				}
			}
		}
	}
}

func TestTopologicalSort(t *testing.T) {
	t.Parallel()

	t.Run("linear", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"d", 1, nil},
			{"c", 1, []string{"d"}},
			{"b", 1, []string{"c"}},
			{"a", 1, []string{"b"}},
		})
		order, err := d.TopologicalSort()
		if err != nil {
			t.Fatalf("TopologicalSort: %v", err)
		}
		if want := []string{"d", "c", "b", "a"}; !equalIDs(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
	})

	t.Run("creation order breaks ties", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"zulu", 1, nil},
			{"alpha", 1, nil},
			{"mike", 1, []string{"zulu"}},
		})
		order, err := d.TopologicalSort()
		if err != nil {
			t.Fatalf("TopologicalSort: %v", err)
		}
		if want := []string{"zulu", "alpha", "mike"}; !equalIDs(order, want) {
			t.Errorf("order = %v, want %v", order, want)
		}
	})

	t.Run("complex", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"f", 1, nil},
			{"d", 1, []string{"f"}},
			{"e", 1, []string{"f"}},
			{"b", 1, []string{"d"}},
			{"c", 1, []string{"e"}},
			{"a", 1, []string{"b", "c"}},
		})
		order, err := d.TopologicalSort()
		if err != nil {
			t.Fatalf("TopologicalSort: %v", err)
		}
		if len(order) != 6 || !validTopologicalOrder(d, order) {
			t.Errorf("invalid topological order: %v", order)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		order, err := New().TopologicalSort()
		if err != nil {
			t.Fatalf("TopologicalSort: %v", err)
		}
		if len(order) != 0 {
			t.Errorf("got %v, want empty", order)
		}
	})

	t.Run("cycle introduced by Link", func(t *testing.T) {
		t.Parallel()
		d := New()
		_ = d.AddNode("a", 0, 1)
		_ = d.AddNode("b", 1, 1)
		_ = d.Link("a", "b")
		_ = d.Link("b", "a")
		if _, err := d.TopologicalSort(); !errors.Is(err, ErrCycle) {
			t.Errorf("got %v, want ErrCycle", err)
		}
	})
}

func TestDescendantsAndDependents(t *testing.T) {
	t.Parallel()
	d := buildDAG(t, []nodeSpec{
		{"a", 1, nil},
		{"b", 1, []string{"a"}},
		{"c", 1, []string{"b"}},
		{"x", 1, nil},
		{"d", 1, []string{"a", "x"}},
	})

	if got, want := d.Descendants("a"), []string{"b", "c", "d"}; !equalIDs(got, want) {
		t.Errorf("Descendants(a) = %v, want %v", got, want)
	}
	if got := d.Descendants("c"); got != nil {
		t.Errorf("Descendants(c) = %v, want nil", got)
	}
	if got := d.Descendants("missing"); got != nil {
		t.Errorf("Descendants(missing) = %v, want nil", got)
	}
	if got, want := d.Dependents("a"), []string{"b", "d"}; !equalIDs(got, want) {
		t.Errorf("Dependents(a) = %v, want %v", got, want)
	}
}

func TestLongestPath(t *testing.T) {
	t.Parallel()

	t.Run("weighted diamond", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"A", 3, nil},
			{"B", 5, []string{"A"}},
			{"C", 1, []string{"A"}},
			{"D", 2, []string{"B", "C"}},
			{"E", 4, nil},
		})
		path, total, err := d.LongestPath()
		if err != nil {
			t.Fatalf("LongestPath: %v", err)
		}
		if want := []string{"A", "B", "D"}; !equalIDs(path, want) {
			t.Errorf("path = %v, want %v", path, want)
		}
		if total != 10 {
			t.Errorf("total = %d, want 10", total)
		}
	})

	t.Run("ties go to earliest created", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"first", 2, nil},
			{"second", 2, nil},
			{"join", 1, []string{"second", "first"}},
		})
		path, total, err := d.LongestPath()
		if err != nil {
			t.Fatalf("LongestPath: %v", err)
		}
		if want := []string{"first", "join"}; !equalIDs(path, want) {
			t.Errorf("path = %v, want %v", path, want)
		}
		if total != 3 {
			t.Errorf("total = %d, want 3", total)
		}
	})

	t.Run("zero weights still yield a path", func(t *testing.T) {
		t.Parallel()
		d := buildDAG(t, []nodeSpec{
			{"m1", 0, nil},
			{"m2", 0, []string{"m1"}},
		})
		path, total, err := d.LongestPath()
		if err != nil {
			t.Fatalf("LongestPath: %v", err)
		}
		if total != 0 || len(path) == 0 || path[0] != "m1" {
			t.Errorf("path = %v total = %d, want path starting at m1 with total 0", path, total)
		}
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		path, total, err := New().LongestPath()
		if err != nil || path != nil || total != 0 {
			t.Errorf("LongestPath() = %v, %d, %v; want nil, 0, nil", path, total, err)
		}
	})
}

func TestComputeStreams(t *testing.T) {
	t.Parallel()
	d := buildDAG(t, []nodeSpec{
		{"a", 1, nil},
		{"b", 2, []string{"a"}},
		{"x", 10, nil},
		{"c", 1, []string{"b"}},
		{"solo", 1, nil},
	})
	streams, err := d.ComputeStreams()
	if err != nil {
		t.Fatalf("ComputeStreams: %v", err)
	}
	if len(streams) != 3 {
		t.Fatalf("got %d streams, want 3", len(streams))
	}
	if !equalIDs(streams[0].NodeIDs, []string{"x"}) || streams[0].TotalWeight != 10 {
		t.Errorf("stream 0 = %+v, want x with weight 10", streams[0])
	}
	if !equalIDs(streams[1].NodeIDs, []string{"a", "b", "c"}) || streams[1].TotalWeight != 4 {
		t.Errorf("stream 1 = %+v, want a,b,c with weight 4", streams[1])
	}
	if d.Node("c").StreamID != 1 {
		t.Errorf("c.StreamID = %d, want 1", d.Node("c").StreamID)
	}
}

func TestUnionFind(t *testing.T) {
	t.Parallel()
	uf := NewUnionFind[string]()
	uf.Union("a", "b")
	uf.Union("c", "d")
	uf.Union("b", "d")
	uf.Add("e")

	if uf.Find("a") != uf.Find("c") {
		t.Error("a and c should share a set")
	}
	if uf.Find("a") == uf.Find("e") {
		t.Error("a and e should not share a set")
	}
	if got := len(uf.Components()); got != 2 {
		t.Errorf("Components() has %d groups, want 2", got)
	}
}
