// Package ui renders gantry's command-line output: committed mutations,
// task tables, milestones, rebaseline requests and the project reports.
package ui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/papapumpkin/gantry/internal/planner"
	"github.com/papapumpkin/gantry/internal/rebaseline"
	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/store"
)

// Printer writes human-readable output to w.
type Printer struct {
	w io.Writer
	s styles
}

// New returns a Printer writing to w. With noColor set no ANSI escapes are
// emitted.
func New(w io.Writer, noColor bool) *Printer {
	return &Printer{w: w, s: newStyles(noColor)}
}

func (p *Printer) Error(msg string) {
	fmt.Fprintf(p.w, "%s %s\n", p.s.danger.Render("error:"), msg)
}

func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.w, p.s.detail.Render(msg))
}

func (p *Printer) Success(msg string) {
	fmt.Fprintf(p.w, "%s %s\n", p.s.success.Render(iconOK), msg)
}

// Rejected explains why the engine refused a change. Validation errors are
// broken down by kind; anything else is printed as a plain error.
func (p *Printer) Rejected(err error) {
	var verr *schedule.ValidationError
	if !errors.As(err, &verr) {
		p.Error(err.Error())
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.s.danger.Render(iconFailed+" rejected"), p.s.accent.Render(string(verr.Kind)))
	fmt.Fprintf(p.w, "  %s\n", verr.Reason)
	if verr.TaskID != "" {
		fmt.Fprintf(p.w, "  %s %s\n", p.s.muted.Render("task:"), verr.TaskID)
	}
	if verr.PredecessorID != "" {
		fmt.Fprintf(p.w, "  %s %s\n", p.s.muted.Render("predecessor:"), verr.PredecessorID)
	}
}

// Result summarizes a committed mutation: every task it rescheduled and
// every task it deleted.
func (p *Printer) Result(verb string, res planner.Result) {
	if len(res.Affected) == 0 && len(res.Deleted) == 0 {
		fmt.Fprintf(p.w, "%s %s %s\n", p.s.success.Render(iconOK), verb, p.s.muted.Render("(no changes)"))
		return
	}
	fmt.Fprintf(p.w, "%s %s %s\n", p.s.success.Render(iconOK), verb,
		p.s.muted.Render(fmt.Sprintf("(revision %d, %d affected)", res.Revision, len(res.Affected))))
	for _, t := range res.Tasks {
		fmt.Fprintf(p.w, "  %s\n", p.taskLine(t))
	}
	for _, id := range res.Deleted {
		fmt.Fprintf(p.w, "  %s %s\n", p.s.danger.Render(iconDeleted), id)
	}
}

// Tasks prints one line per task in the order given.
func (p *Printer) Tasks(tasks []schedule.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(p.w, p.s.muted.Render("  (no tasks)"))
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(p.w, "  %s\n", p.taskLine(t))
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(p.w, "      %s %s\n", p.s.muted.Render("after"),
				p.s.detail.Render(strings.Join(schedule.FormatDependencies(t.Dependencies), ", ")))
		}
	}
}

func (p *Printer) taskLine(t schedule.Task) string {
	icon := p.s.success.Render(iconOK)
	switch {
	case t.HasConflict:
		icon = p.s.danger.Render(iconConflict)
	case t.ManualOverride:
		icon = p.s.accent.Render(iconPinned)
	case t.StartDate.IsZero():
		icon = p.s.muted.Render(iconPending)
	}
	line := fmt.Sprintf("%s %-16s %s  %3dd", icon, t.ID, dateRange(t.StartDate, t.EndDate), t.DurationDays)
	if t.Name != "" {
		line += "  " + t.Name
	}
	return line
}

// Projects prints the stored projects.
func (p *Printer) Projects(projects []store.Project) {
	if len(projects) == 0 {
		fmt.Fprintln(p.w, p.s.muted.Render("  (no projects)"))
		return
	}
	for _, pr := range projects {
		fmt.Fprintf(p.w, "  %-16s %s %s\n", pr.ID, pr.Name,
			p.s.muted.Render(fmt.Sprintf("rev %d", pr.Revision)))
	}
}

// Milestones prints each milestone with its derived range.
func (p *Printer) Milestones(views []planner.MilestoneView) {
	if len(views) == 0 {
		fmt.Fprintln(p.w, p.s.muted.Render("  (no milestones)"))
		return
	}
	for _, v := range views {
		name := v.Milestone.ID
		if v.Milestone.Name != "" {
			name += " " + p.s.detail.Render(v.Milestone.Name)
		}
		fmt.Fprintf(p.w, "  %s %s  %s\n", p.s.heading.Render("◆"), dateRange(v.Dates.Start, v.Dates.End), name)
		fmt.Fprintf(p.w, "      %s %s\n", p.s.muted.Render("tasks"), strings.Join(v.Milestone.TaskIDs, ", "))
	}
}

// Rebaselines prints rebaseline requests, newest decisions last.
func (p *Printer) Rebaselines(reqs []rebaseline.Request) {
	if len(reqs) == 0 {
		fmt.Fprintln(p.w, p.s.muted.Render("  (no requests)"))
		return
	}
	for _, r := range reqs {
		var status string
		switch r.Status {
		case rebaseline.StatusApproved:
			status = p.s.success.Render(string(r.Status))
		case rebaseline.StatusRejected:
			status = p.s.danger.Render(string(r.Status))
		default:
			status = p.s.accent.Render(string(r.Status))
		}
		fmt.Fprintf(p.w, "  %s  %-8s %-12s %s %s → %s\n", r.ID, status, r.TaskID, r.Field,
			orDash(r.OriginalDate.String()), r.ProposedDate)
		if r.Reason != "" {
			fmt.Fprintf(p.w, "      %s\n", p.s.detail.Render(r.Reason))
		}
		if r.DecisionNote != "" {
			fmt.Fprintf(p.w, "      %s %s\n", p.s.muted.Render("note:"), r.DecisionNote)
		}
	}
}

func dateRange(start, end schedule.Date) string {
	return fmt.Sprintf("%-10s .. %-10s", orDash(start.String()), orDash(end.String()))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
