package schedule

import (
	"fmt"
	"slices"
)

// Affected lists the ids of tasks a cascade actually mutated, in
// topological order. Callers persist and broadcast exactly these tasks.
type Affected []string

// Contains reports whether id is in a.
func (a Affected) Contains(id string) bool {
	return slices.Contains(a, id)
}

// Cascade propagates the current dates of taskID to every task that
// transitively depends on it. Each dependent is visited once, after all of
// its predecessors, and snapped to its resolved dates unless it has a manual
// override; overridden tasks keep their dates but still get their conflict
// flag refreshed, and propagation continues past them. The root itself is
// not modified. Running Cascade again on an unchanged snapshot returns an
// empty result.
func (e *Engine) Cascade(taskID string) (Affected, error) {
	if _, ok := e.tasks[taskID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return e.propagate([]string{taskID}, false), nil
}

// Reschedule resolves taskID against its own predecessors and then cascades
// to its dependents. It is the follow-up to adding or removing an edge, or
// to lifting a manual override.
func (e *Engine) Reschedule(taskID string) (Affected, error) {
	if _, ok := e.tasks[taskID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return e.propagate([]string{taskID}, true), nil
}

// RecomputeAll resolves every task of the project in topological order. It
// is what a "something changed, recompute" notification triggers.
func (e *Engine) RecomputeAll() Affected {
	var affected Affected
	for _, id := range e.graph.Order() {
		if e.apply(id) {
			affected = append(affected, id)
		}
	}
	e.logger.Debug("recompute", "tasks", len(e.tasks), "affected", len(affected))
	return affected
}

// propagate re-resolves the dependents of roots (and the roots themselves
// when includeRoots is set) in one topological pass.
func (e *Engine) propagate(roots []string, includeRoots bool) Affected {
	targets := make(map[string]bool)
	for _, root := range roots {
		if includeRoots {
			targets[root] = true
		}
		for _, id := range e.graph.Descendants(root) {
			targets[id] = true
		}
	}
	if len(targets) == 0 {
		return nil
	}

	var affected Affected
	for _, id := range e.graph.Order() {
		if !targets[id] {
			continue
		}
		if e.apply(id) {
			affected = append(affected, id)
		}
	}
	e.logger.Debug("cascade", "roots", roots, "visited", len(targets), "affected", len(affected))
	return affected
}

// apply resolves one task against its already-final predecessors and
// reports whether its dates, conflict flag or acknowledgements changed.
func (e *Engine) apply(id string) bool {
	t := e.tasks[id]
	preds := e.predecessors(id)
	res := ResolveDates(*t, preds)
	changed := false

	if !t.ManualOverride && res.HasSuggestion &&
		(t.StartDate != res.SuggestedStart || t.EndDate != res.SuggestedEnd) {
		t.StartDate, t.EndDate = res.SuggestedStart, res.SuggestedEnd
		changed = true
		res = ResolveDates(*t, preds)
	}
	if pruneAcknowledged(t, res.Acknowledged) {
		changed = true
	}
	if t.HasConflict != res.HasConflict {
		t.HasConflict = res.HasConflict
		changed = true
		if res.HasConflict {
			e.logger.Info("schedule conflict", "task", id, "conflicts", len(res.Conflicts), "override", t.ManualOverride)
		}
	}
	return changed
}

// sortAffected orders ids by the current topological order.
func (e *Engine) sortAffected(a Affected) {
	pos := make(map[string]int, len(e.tasks))
	for i, id := range e.graph.Order() {
		pos[id] = i
	}
	slices.SortStableFunc(a, func(x, y string) int { return pos[x] - pos[y] })
}

// pruneAcknowledged drops acknowledgements that no longer suppress a
// violation: the edge is gone, satisfied, or its required date moved.
func pruneAcknowledged(t *Task, still []Conflict) bool {
	if len(t.Acknowledged) == 0 {
		return false
	}
	live := make(map[EdgeID]bool, len(still))
	for _, c := range still {
		live[c.EdgeID] = true
	}
	changed := false
	for pred := range t.Acknowledged {
		if !live[NewEdgeID(t.ID, pred)] {
			delete(t.Acknowledged, pred)
			changed = true
		}
	}
	if len(t.Acknowledged) == 0 {
		t.Acknowledged = nil
	}
	return changed
}
