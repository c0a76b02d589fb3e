package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/papapumpkin/gantry/internal/planner"
	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/store"
)

// Report is everything a report view may draw from one project snapshot.
type Report struct {
	Project    store.Project
	Tasks      []schedule.Task
	Critical   schedule.CriticalPath
	Slack      map[string]int
	Conflicts  []schedule.TaskConflicts
	Streams    []schedule.Stream
	Milestones []planner.MilestoneView
}

// ReportStrategy defines how to present a project report. Each
// implementation produces a distinct view of the same snapshot.
type ReportStrategy interface {
	Render(r Report) string
}

var strategies = map[string]ReportStrategy{
	"plan":       PlanStrategy{},
	"critical":   CriticalPathStrategy{},
	"conflicts":  ConflictStrategy{},
	"streams":    StreamStrategy{},
	"milestones": MilestoneStrategy{},
}

// Views lists the report view names in sorted order.
func Views() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StrategyFor returns the strategy registered under view.
func StrategyFor(view string) (ReportStrategy, error) {
	s, ok := strategies[view]
	if !ok {
		return nil, fmt.Errorf("unknown report view %q (want one of %s)", view, strings.Join(Views(), ", "))
	}
	return s, nil
}

// PlanStrategy renders every task in creation order with its dates, slack
// and incoming dependencies.
type PlanStrategy struct{}

// Render produces a numbered task list with dependency annotations.
func (PlanStrategy) Render(r Report) string {
	if len(r.Tasks) == 0 {
		return "No tasks in project."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Plan: %s\n\n", projectTitle(r.Project))
	for i, t := range r.Tasks {
		fmt.Fprintf(&b, "%d. %s %s..%s (%dd", i+1, t.ID, orDash(t.StartDate.String()), orDash(t.EndDate.String()), t.DurationDays)
		if slack, ok := r.Slack[t.ID]; ok {
			fmt.Fprintf(&b, ", slack %d", slack)
		}
		b.WriteByte(')')
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(&b, " [after: %s]", strings.Join(schedule.FormatDependencies(t.Dependencies), ", "))
		}
		if t.ManualOverride {
			b.WriteString(" PINNED")
		}
		if t.HasConflict {
			b.WriteString(" CONFLICT")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// CriticalPathStrategy renders the longest chain of dependent tasks.
type CriticalPathStrategy struct{}

// Render produces a critical path report.
func (CriticalPathStrategy) Render(r Report) string {
	if len(r.Critical.TaskIDs) == 0 {
		return "No tasks in project."
	}
	byID := taskIndex(r.Tasks)

	var b strings.Builder
	b.WriteString("# Critical Path\n\n")
	fmt.Fprintf(&b, "Length: %d of %d tasks, %d days\n\n", len(r.Critical.TaskIDs), len(r.Tasks), r.Critical.TotalDays)
	for step, id := range r.Critical.TaskIDs {
		t := byID[id]
		fmt.Fprintf(&b, "%d. %s %s..%s (%dd)\n", step+1, id, orDash(t.StartDate.String()), orDash(t.EndDate.String()), t.DurationDays)
		if step < len(r.Critical.TaskIDs)-1 {
			b.WriteString("   ↓\n")
		}
	}
	return b.String()
}

// ConflictStrategy renders every task whose dates violate an incoming
// edge, with the date each violated edge requires.
type ConflictStrategy struct{}

// Render produces a conflict report.
func (ConflictStrategy) Render(r Report) string {
	if len(r.Conflicts) == 0 {
		return "No schedule conflicts."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Conflicts (%d)\n\n", len(r.Conflicts))
	for _, tc := range r.Conflicts {
		fmt.Fprintf(&b, "## %s", tc.Task.ID)
		if tc.Task.ManualOverride {
			b.WriteString(" (pinned)")
		}
		b.WriteByte('\n')
		for _, c := range tc.Conflicts {
			fmt.Fprintf(&b, "  - %s %s: expected %s, actual %s\n", c.EdgeID, c.Type.Short(), c.ExpectedDate, c.ActualDate)
		}
	}
	return b.String()
}

// StreamStrategy renders the project's independent chains of work.
type StreamStrategy struct{}

// Render produces a stream-by-stream breakdown.
func (StreamStrategy) Render(r Report) string {
	if len(r.Streams) == 0 {
		return "No tasks in project."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Streams (%d)\n\n", len(r.Streams))
	for _, s := range r.Streams {
		fmt.Fprintf(&b, "## Stream %d (%d tasks, %d days)\n", s.ID, len(s.TaskIDs), s.TotalDays)
		for _, id := range s.TaskIDs {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// MilestoneStrategy renders milestone ranges.
type MilestoneStrategy struct{}

// Render produces a milestone summary.
func (MilestoneStrategy) Render(r Report) string {
	if len(r.Milestones) == 0 {
		return "No milestones."
	}
	var b strings.Builder
	b.WriteString("# Milestones\n\n")
	for _, v := range r.Milestones {
		fmt.Fprintf(&b, "- %s %s..%s [%s]\n", v.Milestone.ID,
			orDash(v.Dates.Start.String()), orDash(v.Dates.End.String()),
			strings.Join(v.Milestone.TaskIDs, ", "))
	}
	return b.String()
}

func projectTitle(p store.Project) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func taskIndex(tasks []schedule.Task) map[string]schedule.Task {
	m := make(map[string]schedule.Task, len(tasks))
	for _, t := range tasks {
		m[t.ID] = t
	}
	return m
}
