package schedule

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Engine holds one project's task snapshot and graph and applies every
// scheduling operation to them. It is not safe for concurrent use; callers
// serialize access per project.
type Engine struct {
	tasks   map[string]*Task
	graph   *Graph
	logger  *slog.Logger
	nextSeq int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for data-integrity warnings and cascade
// diagnostics. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine copies tasks into a new engine and builds their graph. Tasks are
// ordered by Seq (creation order); repeated or missing Seq values are
// renumbered upward so every task has a distinct one. Edges the graph
// builder drops are removed from the engine's copy of the task.
func NewEngine(tasks []Task, opts ...Option) (*Engine, error) {
	e := &Engine{
		tasks:  make(map[string]*Task, len(tasks)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	ordered := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		ordered = append(ordered, t.Clone())
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })
	for i, seq := range creationSeqs(ordered) {
		ordered[i].Seq = seq
	}

	g, err := BuildGraph(ordered, e.logger)
	if err != nil {
		return nil, err
	}
	e.graph = g

	for i := range ordered {
		t := &ordered[i]
		if _, dup := e.tasks[t.ID]; dup {
			continue
		}
		t.Dependencies = cloneEdges(g.Edges(t.ID))
		e.tasks[t.ID] = t
		if t.Seq >= e.nextSeq {
			e.nextSeq = t.Seq + 1
		}
	}
	return e, nil
}

// Graph exposes the engine's dependency graph for read-only queries.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Task returns a copy of the task with the given id.
func (e *Engine) Task(id string) (Task, bool) {
	t, ok := e.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// Tasks returns copies of every task in creation order.
func (e *Engine) Tasks() []Task {
	out := make([]Task, 0, len(e.tasks))
	for _, t := range e.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// TasksByID returns copies of the named tasks, skipping unknown ids.
func (e *Engine) TasksByID(ids []string) []Task {
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		if t, ok := e.tasks[id]; ok {
			out = append(out, t.Clone())
		}
	}
	return out
}

// AddTask inserts a new task. Its baseline defaults to its working dates,
// its end date is derived from its duration when unset, and its Seq is
// assigned after every existing task. Any dependencies it carries are added
// through ValidateAndAddDependency; if one is rejected the task is not added.
func (e *Engine) AddTask(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("add task: empty id")
	}
	if _, exists := e.tasks[t.ID]; exists {
		return fmt.Errorf("add task %s: already exists", t.ID)
	}
	if t.DurationDays < 0 {
		return fmt.Errorf("add task %s: negative duration %d", t.ID, t.DurationDays)
	}

	nt := t.Clone()
	nt.Dependencies = nil
	nt.HasConflict = false
	nt.Seq = e.nextSeq
	if !nt.StartDate.IsZero() && nt.EndDate.IsZero() {
		nt.EndDate = nt.StartDate.AddDays(nt.DurationDays)
	}
	if nt.BaselineStart.IsZero() && nt.BaselineEnd.IsZero() {
		nt.BaselineStart, nt.BaselineEnd = nt.StartDate, nt.EndDate
	}

	if err := e.graph.addTask(nt.ID, nt.Seq, nt.DurationDays); err != nil {
		return fmt.Errorf("add task %s: %w", nt.ID, err)
	}
	e.tasks[nt.ID] = &nt
	e.nextSeq++

	for _, dep := range t.Dependencies {
		if _, err := e.ValidateAndAddDependency(nt.ID, dep.PredecessorID, dep.Type, dep.LagDays); err != nil {
			e.graph.removeTask(nt.ID)
			delete(e.tasks, nt.ID)
			e.nextSeq--
			return err
		}
	}
	return nil
}

// UpdateTask applies a direct edit of a task's start date and duration and
// cascades the change to its dependents. The edited task keeps the dates it
// was given; only its conflict flag is re-evaluated.
func (e *Engine) UpdateTask(id string, start Date, durationDays int) (Affected, error) {
	t, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if durationDays < 0 {
		return nil, fmt.Errorf("update task %s: negative duration %d", id, durationDays)
	}

	before := *t
	t.SetSchedule(start, durationDays)
	e.graph.setDuration(id, durationDays)
	t.HasConflict = ResolveDates(*t, e.predecessors(id)).HasConflict

	var affected Affected
	if t.StartDate != before.StartDate || t.EndDate != before.EndDate ||
		t.DurationDays != before.DurationDays || t.HasConflict != before.HasConflict {
		affected = append(affected, id)
	}
	rest, err := e.Cascade(id)
	if err != nil {
		return nil, err
	}
	return append(affected, rest...), nil
}

// ValidateAndAddDependency makes taskID depend on predecessorID. The edge is
// committed only if both tasks exist, the type is valid, the edge is new and
// it would not close a cycle; otherwise a *ValidationError (or
// ErrTaskNotFound / ErrDuplicateDependency) is returned and nothing changes.
// Committing an edge does not move any dates; call Reschedule for that.
func (e *Engine) ValidateAndAddDependency(taskID, predecessorID string, typ DependencyType, lagDays int) (EdgeID, error) {
	t, ok := e.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !typ.IsValid() {
		return "", &ValidationError{
			Kind:          KindMalformedEncoding,
			TaskID:        taskID,
			PredecessorID: predecessorID,
			Reason:        fmt.Sprintf("unknown dependency type %q", typ),
		}
	}
	if _, ok := e.tasks[predecessorID]; !ok {
		return "", &ValidationError{
			Kind:          KindDanglingReference,
			TaskID:        taskID,
			PredecessorID: predecessorID,
			Reason:        "predecessor does not exist in this project",
		}
	}
	if _, exists := t.Dependency(predecessorID); exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateDependency, NewEdgeID(taskID, predecessorID))
	}
	if WouldCreateCycle(e.graph, Candidate{TaskID: taskID, PredecessorID: predecessorID}) {
		reason := "dependency would create a cycle"
		if taskID == predecessorID {
			reason = "task cannot depend on itself"
		}
		return "", &ValidationError{
			Kind:          KindCyclicDependency,
			TaskID:        taskID,
			PredecessorID: predecessorID,
			Reason:        reason,
		}
	}

	edge := DependencyEdge{PredecessorID: predecessorID, Type: typ, LagDays: lagDays}
	if err := e.graph.addEdge(taskID, edge); err != nil {
		return "", fmt.Errorf("add dependency %s: %w", NewEdgeID(taskID, predecessorID), err)
	}
	t.Dependencies = append(t.Dependencies, edge)
	return NewEdgeID(taskID, predecessorID), nil
}

// RemoveDependency deletes the edge from predecessorID to taskID and
// reschedules taskID and its dependents.
func (e *Engine) RemoveDependency(taskID, predecessorID string) (Affected, error) {
	t, ok := e.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if !e.graph.removeEdge(taskID, predecessorID) {
		return nil, fmt.Errorf("%w: %s", ErrDependencyNotFound, NewEdgeID(taskID, predecessorID))
	}
	t.Dependencies = cloneEdges(e.graph.Edges(taskID))

	affected := e.propagate([]string{taskID}, true)
	if !affected.Contains(taskID) {
		// The edge list itself changed and must be persisted.
		affected = append(Affected{taskID}, affected...)
	}
	return affected, nil
}

// RemoveTask deletes a task together with every edge that references it,
// then reschedules its former dependents and everything downstream of them.
// The former dependents are always part of the result since their
// dependency lists changed.
func (e *Engine) RemoveTask(id string) (Affected, error) {
	if _, ok := e.tasks[id]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	former := e.graph.removeTask(id)
	delete(e.tasks, id)
	for _, dep := range former {
		e.tasks[dep].Dependencies = cloneEdges(e.graph.Edges(dep))
	}

	affected := e.propagate(former, true)
	for _, dep := range former {
		if !affected.Contains(dep) {
			affected = append(affected, dep)
		}
	}
	e.sortAffected(affected)
	return affected, nil
}

// SetManualOverride pins or unpins a task's dates. Unpinning does not move
// the task; call Reschedule to snap it back to its constraints.
func (e *Engine) SetManualOverride(id string, override bool) error {
	t, ok := e.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	t.ManualOverride = override
	return nil
}

// AcknowledgeConflicts accepts every edge the task currently violates at its
// current required date, clears its conflict flag and returns the accepted
// conflicts. It is applied when a rebaseline for the task is approved; a
// later move of any accepted constraint flags the task again.
func (e *Engine) AcknowledgeConflicts(id string) ([]Conflict, error) {
	t, ok := e.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	bare := t.Clone()
	bare.Acknowledged = nil
	res := ResolveDates(bare, e.predecessors(id))

	var acks map[string]Date
	for _, c := range res.Conflicts {
		pred := predecessorOf(c.EdgeID, id)
		if acks == nil {
			acks = make(map[string]Date, len(res.Conflicts))
		}
		acks[pred] = c.ExpectedDate
	}
	t.Acknowledged = acks
	t.HasConflict = false
	return res.Conflicts, nil
}

// DependentTasks returns the tasks that directly depend on id.
func (e *Engine) DependentTasks(id string) []Task {
	return e.TasksByID(e.graph.Dependents(id))
}

// MilestoneDates aggregates m over the engine's tasks.
func (e *Engine) MilestoneDates(m Milestone) MilestoneDates {
	dates := MilestoneDates{}
	for _, id := range m.TaskIDs {
		if t, ok := e.tasks[id]; ok {
			dates = widen(dates, *t)
		}
	}
	return dates
}

// Streams partitions the project into independent chains of dependent tasks.
func (e *Engine) Streams() ([]Stream, error) {
	raw, err := e.graph.dagStreams()
	if err != nil {
		return nil, err
	}
	streams := make([]Stream, 0, len(raw))
	for _, s := range raw {
		streams = append(streams, Stream{ID: s.ID, TaskIDs: s.NodeIDs, TotalDays: s.TotalWeight})
	}
	return streams, nil
}

func (e *Engine) predecessors(id string) []Predecessor {
	edges := e.graph.Edges(id)
	preds := make([]Predecessor, 0, len(edges))
	for _, edge := range edges {
		if p, ok := e.tasks[edge.PredecessorID]; ok {
			preds = append(preds, Predecessor{Edge: edge, Task: *p})
		}
	}
	return preds
}

// predecessorOf recovers the predecessor id from an edge id of taskID.
func predecessorOf(id EdgeID, taskID string) string {
	return strings.TrimSuffix(string(id), "->"+taskID)
}

func cloneEdges(edges []DependencyEdge) []DependencyEdge {
	if len(edges) == 0 {
		return nil
	}
	out := make([]DependencyEdge, len(edges))
	copy(out, edges)
	return out
}
