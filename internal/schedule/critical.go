package schedule

// CriticalPath returns the chain of dependent tasks with the largest total
// DurationDays, ordered from the first predecessor to the final dependent.
// Ties between equally long chains go to the tasks created first. Dates are
// not consulted or modified.
func (e *Engine) CriticalPath() (CriticalPath, error) {
	ids, total, err := e.graph.longestPath()
	if err != nil {
		return CriticalPath{}, err
	}
	return CriticalPath{TaskIDs: ids, TotalDays: total}, nil
}

// Slack returns, for every task, how many days it could slip without
// lengthening the project measured by summed durations. Tasks on the
// critical path have zero slack.
func (e *Engine) Slack() (map[string]int, error) {
	order := e.graph.Order()
	cp, err := e.CriticalPath()
	if err != nil {
		return nil, err
	}

	// Forward pass: heaviest chain ending at each task.
	early := make(map[string]int, len(order))
	for _, id := range order {
		best := 0
		for _, edge := range e.graph.Edges(id) {
			if early[edge.PredecessorID] > best {
				best = early[edge.PredecessorID]
			}
		}
		early[id] = best + e.tasks[id].DurationDays
	}

	// Backward pass: latest finish that still fits inside the critical total.
	late := make(map[string]int, len(order))
	for i := len(order) - 1; i >= 0; i-- {
		id := order[i]
		latest := cp.TotalDays
		for _, dep := range e.graph.Dependents(id) {
			if v := late[dep] - e.tasks[dep].DurationDays; v < latest {
				latest = v
			}
		}
		late[id] = latest
	}

	slack := make(map[string]int, len(order))
	for _, id := range order {
		slack[id] = late[id] - early[id]
	}
	return slack, nil
}
