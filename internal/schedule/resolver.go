package schedule

// Predecessor is an incoming edge paired with the predecessor's current
// (already resolved) task record.
type Predecessor struct {
	Edge DependencyEdge
	Task Task
}

// Resolution is the outcome of resolving one task against its predecessors.
type Resolution struct {
	// HasSuggestion is false when no predecessor constrains the task; the
	// task's own dates then stand.
	HasSuggestion  bool
	SuggestedStart Date
	SuggestedEnd   Date
	// BindingEdge is the edge that produced the suggestion.
	BindingEdge EdgeID

	HasConflict bool
	Conflicts   []Conflict
	// Acknowledged holds violations the task has accepted through
	// Task.Acknowledged. They do not set HasConflict.
	Acknowledged []Conflict
}

// ResolveDates computes the dates task must take to satisfy every edge in
// preds, and reports which edges its current dates violate.
//
// Each edge yields a required window:
//
//	finish-to-start   start = pred.end   + lag
//	start-to-start    start = pred.start + lag
//	finish-to-finish  end   = pred.end   + lag
//	start-to-finish   end   = pred.start + lag
//
// with the other bound derived from DurationDays. The latest required start
// binds; on a tie the edge declared first wins. Predecessors without dates
// impose nothing. A task without a start date is never flagged, and neither
// is an edge whose required date matches the task's acknowledgement for it.
func ResolveDates(task Task, preds []Predecessor) Resolution {
	var res Resolution
	for _, p := range preds {
		if p.Task.StartDate.IsZero() {
			continue
		}
		start, end := requiredWindow(p.Edge, p.Task, task.DurationDays)
		if !res.HasSuggestion || start.After(res.SuggestedStart) {
			res.HasSuggestion = true
			res.SuggestedStart = start
			res.SuggestedEnd = end
			res.BindingEdge = NewEdgeID(task.ID, p.Task.ID)
		}

		if task.StartDate.IsZero() {
			continue
		}
		if c, violated := checkEdge(task, p, start, end); violated {
			if ack, ok := task.Acknowledged[p.Task.ID]; ok && ack == c.ExpectedDate {
				res.Acknowledged = append(res.Acknowledged, c)
			} else {
				res.Conflicts = append(res.Conflicts, c)
			}
		}
	}
	res.HasConflict = len(res.Conflicts) > 0
	return res
}

func requiredWindow(e DependencyEdge, pred Task, durationDays int) (start, end Date) {
	switch e.Type {
	case StartToStart:
		start = pred.StartDate.AddDays(e.LagDays)
		return start, start.AddDays(durationDays)
	case FinishToFinish:
		end = pred.EndDate.AddDays(e.LagDays)
		return end.AddDays(-durationDays), end
	case StartToFinish:
		end = pred.StartDate.AddDays(e.LagDays)
		return end.AddDays(-durationDays), end
	default:
		start = pred.EndDate.AddDays(e.LagDays)
		return start, start.AddDays(durationDays)
	}
}

func checkEdge(task Task, p Predecessor, start, end Date) (Conflict, bool) {
	c := Conflict{
		EdgeID: NewEdgeID(task.ID, p.Task.ID),
		Type:   p.Edge.Type,
	}
	if p.Edge.Type.constrainsEnd() {
		if task.EndDate.Before(end) {
			c.ExpectedDate, c.ActualDate = end, task.EndDate
			return c, true
		}
		return Conflict{}, false
	}
	if task.StartDate.Before(start) {
		c.ExpectedDate, c.ActualDate = start, task.StartDate
		return c, true
	}
	return Conflict{}, false
}
