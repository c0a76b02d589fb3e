// Package dag provides the directed acyclic graph underneath the scheduling
// engine. It tracks which tasks depend on which, rejects edges that would
// close a cycle, and offers topological ordering, transitive dependent
// queries, weighted longest paths and independent stream partitioning.
package dag

import (
	"errors"
	"fmt"
	"sort"
)

// ErrCycle is returned when the graph contains a dependency cycle.
var ErrCycle = errors.New("cycle detected")

// ErrNodeNotFound is returned when an operation references a non-existent node.
var ErrNodeNotFound = errors.New("node not found")

// ErrDuplicateNode is returned when adding a node that already exists.
var ErrDuplicateNode = errors.New("duplicate node")

// ErrSelfEdge is returned when an edge would create a self-loop.
var ErrSelfEdge = errors.New("self-referencing edge")

// Node represents a task in the DAG.
type Node struct {
	ID string

	// Seq is the creation order of the node. Lower values sort first and
	// break every tie in ordering and path selection.
	Seq int

	// Weight is the node's cost on a path, in days.
	Weight int

	// StreamID is assigned by ComputeStreams.
	StreamID int
}

// DAG represents a directed acyclic graph of tasks.
// Edges point from a node to its dependencies: if A depends on B,
// there is an edge from A to B.
type DAG struct {
	nodes map[string]*Node
	// adjacency maps nodeID → set of dependency IDs (forward edges).
	adjacency map[string]map[string]bool
	// reverse maps nodeID → set of dependent IDs (backward edges).
	reverse map[string]map[string]bool
}

// New creates an empty DAG.
func New() *DAG {
	return &DAG{
		nodes:     make(map[string]*Node),
		adjacency: make(map[string]map[string]bool),
		reverse:   make(map[string]map[string]bool),
	}
}

// AddNode adds a node with the given ID, creation sequence and weight.
// Returns ErrDuplicateNode if a node with that ID already exists.
func (d *DAG) AddNode(id string, seq, weight int) error {
	if _, exists := d.nodes[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
	}
	d.nodes[id] = &Node{
		ID:     id,
		Seq:    seq,
		Weight: weight,
	}
	d.adjacency[id] = make(map[string]bool)
	d.reverse[id] = make(map[string]bool)
	return nil
}

// SetWeight updates the path weight of an existing node.
func (d *DAG) SetWeight(id string, weight int) error {
	n, ok := d.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	n.Weight = weight
	return nil
}

// AddEdge adds a dependency edge: from depends on to. Both nodes must
// already exist. Returns an error if either node is missing, the edge
// would create a self-loop, or the edge would introduce a cycle.
func (d *DAG) AddEdge(from, to string) error {
	if err := d.checkEdge(from, to); err != nil {
		return err
	}
	if d.adjacency[from][to] {
		return nil
	}
	if d.WouldCreateCycle(from, to) {
		return fmt.Errorf("%w: edge %s → %s would create a cycle", ErrCycle, from, to)
	}
	d.link(from, to)
	return nil
}

// Link adds a dependency edge without the cycle check. It is meant for bulk
// construction from data that is already known to be acyclic; callers must
// run TopologicalSort afterwards to verify that assumption.
func (d *DAG) Link(from, to string) error {
	if err := d.checkEdge(from, to); err != nil {
		return err
	}
	d.link(from, to)
	return nil
}

// RemoveEdge deletes the dependency edge from → to. Missing edges are ignored.
func (d *DAG) RemoveEdge(from, to string) {
	if deps, ok := d.adjacency[from]; ok {
		delete(deps, to)
	}
	if dependents, ok := d.reverse[to]; ok {
		delete(dependents, from)
	}
}

// HasEdge reports whether from directly depends on to.
func (d *DAG) HasEdge(from, to string) bool {
	return d.adjacency[from][to]
}

// Remove removes a node and all its associated edges from the DAG.
// Returns ErrNodeNotFound if the node does not exist.
func (d *DAG) Remove(id string) error {
	if _, ok := d.nodes[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	for dep := range d.adjacency[id] {
		delete(d.reverse[dep], id)
	}
	delete(d.adjacency, id)

	for dependent := range d.reverse[id] {
		delete(d.adjacency[dependent], id)
	}
	delete(d.reverse, id)

	delete(d.nodes, id)
	return nil
}

// Node returns the node with the given ID, or nil if not found.
func (d *DAG) Node(id string) *Node {
	return d.nodes[id]
}

// Nodes returns all node IDs in the DAG in creation order.
func (d *DAG) Nodes() []string {
	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}
	d.sortBySeq(ids)
	return ids
}

// Len returns the number of nodes in the DAG.
func (d *DAG) Len() int {
	return len(d.nodes)
}

// Dependencies returns the direct dependencies of id in creation order.
func (d *DAG) Dependencies(id string) []string {
	return d.setToSorted(d.adjacency[id])
}

// Dependents returns the nodes that directly depend on id, in creation order.
func (d *DAG) Dependents(id string) []string {
	return d.setToSorted(d.reverse[id])
}

// WouldCreateCycle reports whether adding the edge from → to (from depends
// on to) would close a loop. It runs a three-color depth-first search from
// `from` along dependent edges and reports whether `to` is reachable. A
// self edge always counts as a cycle. The graph is not modified.
func (d *DAG) WouldCreateCycle(from, to string) bool {
	if from == to {
		return true
	}
	const (
		white = iota
		gray
		black
	)
	type frame struct {
		id   string
		next []string
	}

	color := make(map[string]int, len(d.nodes))
	color[from] = gray
	stack := []frame{{id: from, next: d.Dependents(from)}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.next) == 0 {
			color[top.id] = black
			stack = stack[:len(stack)-1]
			continue
		}
		n := top.next[0]
		top.next = top.next[1:]
		if n == to {
			return true
		}
		if color[n] == white {
			color[n] = gray
			stack = append(stack, frame{id: n, next: d.Dependents(n)})
		}
	}
	return false
}

// TopologicalSort returns node IDs in a valid topological order
// (dependencies come before dependents). Among nodes released at the same
// time, lower creation sequence appears first. Returns ErrCycle if the
// graph contains a cycle.
func (d *DAG) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for id := range d.nodes {
		inDegree[id] = len(d.adjacency[id])
	}

	queue := d.zeroDegreeNodes(inDegree)
	d.sortBySeq(queue)

	sorted := make([]string, 0, len(d.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		var freed []string
		for dependent := range d.reverse[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		if len(freed) > 0 {
			d.sortBySeq(freed)
			queue = append(queue, freed...)
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("%w: not all nodes could be ordered (%d of %d)",
			ErrCycle, len(sorted), len(d.nodes))
	}
	return sorted, nil
}

// Descendants returns all transitive dependents of the given node (everything
// that transitively depends on it) in creation order. Returns nil if the node
// has no dependents or does not exist.
func (d *DAG) Descendants(id string) []string {
	if _, ok := d.nodes[id]; !ok {
		return nil
	}
	visited := make(map[string]bool)
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for dep := range d.reverse[cur] {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	return d.setToSorted(visited)
}

func (d *DAG) checkEdge(from, to string) error {
	if from == to {
		return fmt.Errorf("%w: %s", ErrSelfEdge, from)
	}
	if _, ok := d.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, from)
	}
	if _, ok := d.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotFound, to)
	}
	return nil
}

func (d *DAG) link(from, to string) {
	d.adjacency[from][to] = true
	d.reverse[to][from] = true
}

// zeroDegreeNodes returns IDs from the in-degree map that have zero value.
func (d *DAG) zeroDegreeNodes(inDegree map[string]int) []string {
	var result []string
	for id, deg := range inDegree {
		if deg == 0 {
			result = append(result, id)
		}
	}
	return result
}

func (d *DAG) setToSorted(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	d.sortBySeq(ids)
	return ids
}

// sortBySeq orders ids by creation sequence ascending, with the ID as
// tiebreaker.
func (d *DAG) sortBySeq(ids []string) {
	if len(ids) <= 1 {
		return
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := d.seq(ids[i]), d.seq(ids[j])
		if si != sj {
			return si < sj
		}
		return ids[i] < ids[j]
	})
}

func (d *DAG) seq(id string) int {
	if n, ok := d.nodes[id]; ok {
		return n.Seq
	}
	return 0
}
