package schedule

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

// discard is a logger for tests that do not assert on log output.
var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func jan(day int) Date { return D(2025, time.January, day) }

// mk builds a task starting at start with the given duration. Seq follows
// the order in which the test lists tasks.
func mk(id string, start Date, duration int, deps ...DependencyEdge) Task {
	t := Task{ID: id, Dependencies: deps}
	t.SetSchedule(start, duration)
	t.BaselineStart, t.BaselineEnd = t.StartDate, t.EndDate
	return t
}

func edge(pred string, typ DependencyType, lag int) DependencyEdge {
	return DependencyEdge{PredecessorID: pred, Type: typ, LagDays: lag}
}

func fs(pred string, lag int) DependencyEdge { return edge(pred, FinishToStart, lag) }

func newEngine(t *testing.T, tasks ...Task) *Engine {
	t.Helper()
	for i := range tasks {
		tasks[i].Seq = i
	}
	e, err := NewEngine(tasks, WithLogger(discard))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func mustTask(t *testing.T, e *Engine, id string) Task {
	t.Helper()
	task, ok := e.Task(id)
	if !ok {
		t.Fatalf("task %q not found", id)
	}
	return task
}
