package schedule

// Conflicts resolves every task of the engine and returns those whose
// current dates violate at least one incoming edge, in creation order.
func (e *Engine) Conflicts() []TaskConflicts {
	var out []TaskConflicts
	for _, t := range e.Tasks() {
		res := ResolveDates(t, e.predecessors(t.ID))
		if res.HasConflict {
			out = append(out, TaskConflicts{Task: t, Conflicts: res.Conflicts})
		}
	}
	return out
}

// TasksWithScheduleConflicts checks every task in tasks against its
// predecessors within the same slice and returns the violators in input
// order. Edges naming tasks outside the slice are ignored.
func TasksWithScheduleConflicts(tasks []Task) []TaskConflicts {
	byID := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byID[t.ID]; !dup {
			byID[t.ID] = t
		}
	}

	var out []TaskConflicts
	for _, t := range tasks {
		var preds []Predecessor
		for _, edge := range t.Dependencies {
			if p, ok := byID[edge.PredecessorID]; ok && p.ID != t.ID {
				preds = append(preds, Predecessor{Edge: edge, Task: p})
			}
		}
		if res := ResolveDates(t, preds); res.HasConflict {
			out = append(out, TaskConflicts{Task: t, Conflicts: res.Conflicts})
		}
	}
	return out
}

// DependentTasks returns the tasks in tasks that directly depend on taskID,
// in input order.
func DependentTasks(taskID string, tasks []Task) []Task {
	var out []Task
	for _, t := range tasks {
		if _, ok := t.Dependency(taskID); ok && t.ID != taskID {
			out = append(out, t)
		}
	}
	return out
}
