package schedule

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/papapumpkin/gantry/internal/dag"
)

// DroppedEdge is a stored dependency the graph builder refused to load.
type DroppedEdge struct {
	TaskID string
	Edge   DependencyEdge
	Reason string
}

// Graph is the dependency structure of one project: for every task, the
// ordered predecessor edges that survived validation, plus the reverse
// (dependents) index kept by the underlying DAG.
type Graph struct {
	dag     *dag.DAG
	edges   map[string][]DependencyEdge
	dropped []DroppedEdge
	order   []string
}

// Candidate is a proposed edge: TaskID would depend on PredecessorID.
type Candidate struct {
	TaskID        string
	PredecessorID string
}

// BuildGraph assembles the graph for one project's tasks in O(tasks+edges).
// The slice order is the creation order used for tie-breaking; each node
// keeps its task's Seq unless that would not exceed the previous one. References to
// unknown predecessors, self references and repeated predecessors are
// dropped and logged as data-integrity warnings. A cycle in the stored data
// is reported as a CyclicDependency ValidationError.
func BuildGraph(tasks []Task, logger *slog.Logger) (*Graph, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Graph{
		dag:   dag.New(),
		edges: make(map[string][]DependencyEdge, len(tasks)),
	}

	seqs := creationSeqs(tasks)
	for i, t := range tasks {
		if err := g.dag.AddNode(t.ID, seqs[i], t.DurationDays); err != nil {
			logger.Warn("duplicate task id ignored", "task", t.ID, "kind", KindDanglingReference)
			continue
		}
	}

	for _, t := range tasks {
		if _, seen := g.edges[t.ID]; seen {
			continue // duplicate id, first occurrence wins
		}
		g.edges[t.ID] = nil
		for _, e := range t.Dependencies {
			if reason := g.rejectReason(t.ID, e); reason != "" {
				g.dropped = append(g.dropped, DroppedEdge{TaskID: t.ID, Edge: e, Reason: reason})
				logger.Warn("dependency dropped",
					"task", t.ID,
					"predecessor", e.PredecessorID,
					"reason", reason,
					"kind", KindDanglingReference)
				continue
			}
			if err := g.dag.Link(t.ID, e.PredecessorID); err != nil {
				return nil, fmt.Errorf("link %s → %s: %w", t.ID, e.PredecessorID, err)
			}
			g.edges[t.ID] = append(g.edges[t.ID], e)
		}
	}

	order, err := g.dag.TopologicalSort()
	if err != nil {
		if errors.Is(err, dag.ErrCycle) {
			return nil, &ValidationError{Kind: KindCyclicDependency, Reason: err.Error()}
		}
		return nil, err
	}
	g.order = order
	return g, nil
}

func (g *Graph) rejectReason(taskID string, e DependencyEdge) string {
	switch {
	case e.PredecessorID == taskID:
		return "self reference"
	case g.dag.Node(e.PredecessorID) == nil:
		return "unknown predecessor"
	case g.dag.HasEdge(taskID, e.PredecessorID):
		return "duplicate predecessor"
	default:
		return ""
	}
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool {
	return g.dag.Node(id) != nil
}

// Edges returns the validated predecessor edges of id in declaration order.
func (g *Graph) Edges(id string) []DependencyEdge {
	return g.edges[id]
}

// Dependents returns the tasks that directly depend on id, in creation order.
func (g *Graph) Dependents(id string) []string {
	return g.dag.Dependents(id)
}

// Descendants returns every task that transitively depends on id.
func (g *Graph) Descendants(id string) []string {
	return g.dag.Descendants(id)
}

// Dropped lists the stored edges that were rejected while building.
func (g *Graph) Dropped() []DroppedEdge {
	return g.dropped
}

// Order returns all task ids in topological order, predecessors first, with
// creation order breaking ties.
func (g *Graph) Order() []string {
	if g.order == nil && g.dag.Len() > 0 {
		// The graph is kept acyclic by every mutation path, so the sort
		// cannot fail here.
		g.order, _ = g.dag.TopologicalSort()
	}
	return g.order
}

// WouldCreateCycle reports whether committing c would close a loop in g.
// It only reads g.
func WouldCreateCycle(g *Graph, c Candidate) bool {
	return g.dag.WouldCreateCycle(c.TaskID, c.PredecessorID)
}

func (g *Graph) addTask(id string, seq, durationDays int) error {
	if err := g.dag.AddNode(id, seq, durationDays); err != nil {
		return err
	}
	g.edges[id] = nil
	g.order = nil
	return nil
}

func (g *Graph) setDuration(id string, durationDays int) {
	_ = g.dag.SetWeight(id, durationDays)
}

func (g *Graph) addEdge(taskID string, e DependencyEdge) error {
	if err := g.dag.AddEdge(taskID, e.PredecessorID); err != nil {
		return err
	}
	g.edges[taskID] = append(g.edges[taskID], e)
	g.order = nil
	return nil
}

func (g *Graph) removeEdge(taskID, predecessorID string) bool {
	edges := g.edges[taskID]
	for i, e := range edges {
		if e.PredecessorID == predecessorID {
			g.edges[taskID] = append(edges[:i:i], edges[i+1:]...)
			g.dag.RemoveEdge(taskID, predecessorID)
			g.order = nil
			return true
		}
	}
	return false
}

// removeTask deletes id and every edge touching it, returning the tasks that
// depended on it.
func (g *Graph) removeTask(id string) []string {
	former := g.dag.Dependents(id)
	for _, dep := range former {
		g.removeEdge(dep, id)
	}
	_ = g.dag.Remove(id)
	delete(g.edges, id)
	g.order = nil
	return former
}

func (g *Graph) dagStreams() ([]dag.Stream, error) {
	return g.dag.ComputeStreams()
}

func (g *Graph) longestPath() ([]string, int, error) {
	return g.dag.LongestPath()
}

// creationSeqs returns a strictly increasing sequence number for each task
// in slice order, keeping a task's own Seq where it already increases.
func creationSeqs(tasks []Task) []int {
	seqs := make([]int, len(tasks))
	for i, t := range tasks {
		seqs[i] = t.Seq
		if i > 0 && seqs[i] <= seqs[i-1] {
			seqs[i] = seqs[i-1] + 1
		}
	}
	return seqs
}
