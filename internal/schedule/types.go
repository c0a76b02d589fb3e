// Package schedule is the task dependency and scheduling engine. It decodes
// dependency constraints, builds the per-project task graph, rejects edges
// that would introduce cycles, resolves task dates against their
// predecessors, cascades date changes to dependents, computes the critical
// path and aggregates milestone date ranges.
//
// Every function in this package is a pure, synchronous computation over an
// in-memory snapshot. Persistence, change notification and per-project
// serialization live in the planner and store packages.
package schedule

import (
	"fmt"
	"maps"
)

// DependencyType is the kind of constraint an edge places between a
// predecessor and its dependent task.
type DependencyType string

// Dependency types. The string values are the long form used in the
// persisted encoding.
const (
	FinishToStart  DependencyType = "finish-to-start"
	StartToStart   DependencyType = "start-to-start"
	FinishToFinish DependencyType = "finish-to-finish"
	StartToFinish  DependencyType = "start-to-finish"
)

// IsValid reports whether t is one of the four known dependency types.
func (t DependencyType) IsValid() bool {
	switch t {
	case FinishToStart, StartToStart, FinishToFinish, StartToFinish:
		return true
	default:
		return false
	}
}

// Short returns the two-letter abbreviation (FS, SS, FF, SF).
func (t DependencyType) Short() string {
	switch t {
	case StartToStart:
		return "SS"
	case FinishToFinish:
		return "FF"
	case StartToFinish:
		return "SF"
	default:
		return "FS"
	}
}

// constrainsEnd reports whether the type bounds the dependent's end date
// rather than its start date.
func (t DependencyType) constrainsEnd() bool {
	return t == FinishToFinish || t == StartToFinish
}

// DependencyEdge is one incoming constraint on a task.
type DependencyEdge struct {
	PredecessorID string
	Type          DependencyType
	// LagDays is a signed offset: positive delays the dependent (lag),
	// negative lets it overlap the predecessor (lead).
	LagDays int
}

// EdgeID identifies an edge within a project.
type EdgeID string

// NewEdgeID returns the identifier of the edge from predecessorID to taskID.
func NewEdgeID(taskID, predecessorID string) EdgeID {
	return EdgeID(fmt.Sprintf("%s->%s", predecessorID, taskID))
}

// Task is a schedulable node of a project.
type Task struct {
	ID            string
	Name          string
	DurationDays  int
	StartDate     Date
	EndDate       Date
	BaselineStart Date
	BaselineEnd   Date
	Dependencies  []DependencyEdge

	// ManualOverride pins the task's dates: cascades never overwrite them,
	// though its conflict flag is still maintained.
	ManualOverride bool

	// HasConflict is the persisted result of the last conflict check.
	HasConflict bool

	// Acknowledged maps a predecessor id to the required date an approved
	// rebaseline accepted this task violating. That edge is not flagged
	// again until its required date moves.
	Acknowledged map[string]Date

	// Seq is the creation order within the project.
	Seq int
}

// Clone returns a deep copy of t.
func (t Task) Clone() Task {
	c := t
	c.Acknowledged = maps.Clone(t.Acknowledged)
	if t.Dependencies != nil {
		c.Dependencies = make([]DependencyEdge, len(t.Dependencies))
		copy(c.Dependencies, t.Dependencies)
	}
	return c
}

// SetSchedule sets the start date and derives the end date from duration.
// A zero start leaves the task unscheduled.
func (t *Task) SetSchedule(start Date, durationDays int) {
	t.DurationDays = durationDays
	t.StartDate = start
	t.EndDate = start.AddDays(durationDays)
}

// Dependency returns the edge from predecessorID, if present.
func (t Task) Dependency(predecessorID string) (DependencyEdge, bool) {
	for _, e := range t.Dependencies {
		if e.PredecessorID == predecessorID {
			return e, true
		}
	}
	return DependencyEdge{}, false
}

// Milestone groups tasks whose combined span is the milestone's date range.
type Milestone struct {
	ID      string
	Name    string
	TaskIDs []string
}

// MilestoneDates is the derived range of a milestone. Both fields are zero
// when the milestone has no member tasks.
type MilestoneDates struct {
	Start Date
	End   Date
}

// Conflict records one edge whose constraint the task's current dates violate.
type Conflict struct {
	EdgeID       EdgeID
	Type         DependencyType
	ExpectedDate Date
	ActualDate   Date
}

// TaskConflicts pairs a task with the constraints it currently violates.
type TaskConflicts struct {
	Task      Task
	Conflicts []Conflict
}

// CriticalPath is the longest-duration chain of dependent tasks.
type CriticalPath struct {
	TaskIDs   []string
	TotalDays int
}

// Stream is a set of tasks connected by dependencies, independent of every
// other stream in the project.
type Stream struct {
	ID        int
	TaskIDs   []string
	TotalDays int
}
