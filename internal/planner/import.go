package planner

import (
	"context"
	"errors"
	"fmt"

	"github.com/papapumpkin/gantry/internal/events"
	"github.com/papapumpkin/gantry/internal/planfile"
	"github.com/papapumpkin/gantry/internal/rebaseline"
	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/store"
	"github.com/papapumpkin/gantry/internal/telemetry"
)

// ImportPlan replaces a project's tasks and milestones with the contents of
// a plan file, creating the project if needed. Plan order is creation order.
// A task that already has a stored baseline keeps it: a plan baseline that
// differs opens a pending rebaseline request instead of being written. The
// imported schedule is fully recomputed and written, milestones included,
// in one revision-guarded transaction. A plan whose dependencies form a
// cycle is rejected as a whole.
func (s *Service) ImportPlan(ctx context.Context, plan planfile.Plan) (Result, error) {
	if plan.ProjectID == "" {
		return Result{}, fmt.Errorf("import plan: project id is required")
	}
	if _, err := s.store.CreateProject(ctx, plan.ProjectID, plan.Name); err != nil && !errors.Is(err, store.ErrProjectExists) {
		return Result{}, err
	}

	unlock := s.locks.Lock(plan.ProjectID)
	defer unlock()

	snap, err := s.store.LoadProject(ctx, plan.ProjectID)
	if err != nil {
		return Result{}, err
	}
	existing := snap.TaskMap()

	tasks := make([]schedule.Task, len(plan.Tasks))
	keep := make(map[string]bool, len(plan.Tasks))
	var proposals []proposal
	for i, t := range plan.Tasks {
		t = t.Clone()
		t.Seq = i
		if t.EndDate.IsZero() {
			t.EndDate = t.StartDate.AddDays(t.DurationDays)
		}
		old, known := existing[t.ID]
		switch {
		case known && !(old.BaselineStart.IsZero() && old.BaselineEnd.IsZero()):
			proposals = append(proposals, baselineProposals(old, t)...)
			t.BaselineStart, t.BaselineEnd = old.BaselineStart, old.BaselineEnd
		case t.BaselineStart.IsZero() && t.BaselineEnd.IsZero():
			t.BaselineStart, t.BaselineEnd = t.StartDate, t.EndDate
		}
		if known {
			t.Acknowledged = old.Acknowledged
		}
		tasks[i] = t
		keep[t.ID] = true
	}

	eng, err := schedule.NewEngine(tasks, schedule.WithLogger(s.logger.With("project", plan.ProjectID)))
	if err != nil {
		return Result{}, fmt.Errorf("import plan %s: %w", plan.ProjectID, err)
	}
	affected := eng.RecomputeAll()

	var deleted []string
	for _, t := range snap.Tasks {
		if !keep[t.ID] {
			deleted = append(deleted, t.ID)
		}
	}

	upserts := eng.Tasks()
	rev, err := s.store.ReplacePlan(ctx, plan.ProjectID, snap.Project.Revision, upserts, deleted, plan.Milestones)
	if err != nil {
		return Result{}, err
	}
	requests, err := s.openProposals(ctx, plan, proposals)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		ProjectID: plan.ProjectID,
		Revision:  rev,
		Affected:  affected,
		Tasks:     upserts,
		Deleted:   deleted,
		Requests:  requests,
	}
	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.PlanReloaded, ProjectID: plan.ProjectID, Revision: rev})
	}
	s.record(telemetry.KindPlanImported, plan.ProjectID, "", map[string]any{
		"source":   plan.Source,
		"tasks":    len(upserts),
		"deleted":  len(deleted),
		"resolved": len(affected),
		"requests": len(requests),
		"dropped":  len(eng.Graph().Dropped()),
		"revision": rev,
	})
	s.logger.Info("plan imported", "project", plan.ProjectID, "source", plan.Source,
		"tasks", len(upserts), "deleted", len(deleted), "revision", rev)
	return res, nil
}

// proposal is a plan baseline bound that differs from the stored one.
type proposal struct {
	task  schedule.Task
	field rebaseline.Field
	date  schedule.Date
}

func baselineProposals(stored, planned schedule.Task) []proposal {
	var out []proposal
	if !planned.BaselineStart.IsZero() && planned.BaselineStart != stored.BaselineStart {
		out = append(out, proposal{task: stored, field: rebaseline.FieldStart, date: planned.BaselineStart})
	}
	if !planned.BaselineEnd.IsZero() && planned.BaselineEnd != stored.BaselineEnd {
		out = append(out, proposal{task: stored, field: rebaseline.FieldEnd, date: planned.BaselineEnd})
	}
	return out
}

// openProposals saves a pending request for each proposal that does not
// already have an identical one pending.
func (s *Service) openProposals(ctx context.Context, plan planfile.Plan, proposals []proposal) ([]rebaseline.Request, error) {
	if len(proposals) == 0 {
		return nil, nil
	}
	pending, err := s.store.ListRebaselines(ctx, plan.ProjectID, rebaseline.StatusPending)
	if err != nil {
		return nil, err
	}
	type key struct {
		task  string
		field rebaseline.Field
		date  schedule.Date
	}
	open := make(map[key]bool, len(pending))
	for _, r := range pending {
		open[key{r.TaskID, r.Field, r.ProposedDate}] = true
	}

	var out []rebaseline.Request
	for _, p := range proposals {
		k := key{p.task.ID, p.field, p.date}
		if open[k] {
			continue
		}
		req, err := rebaseline.New(plan.ProjectID, p.task, p.field, p.date, "plan file "+plan.Source, s.now())
		if err != nil {
			return nil, err
		}
		if err := s.store.SaveRebaseline(ctx, req); err != nil {
			return nil, err
		}
		open[k] = true
		out = append(out, req)
		s.record(telemetry.KindRebaselineRequested, plan.ProjectID, p.task.ID, map[string]any{
			"request":  req.ID,
			"field":    req.Field,
			"original": req.OriginalDate.String(),
			"proposed": req.ProposedDate.String(),
			"source":   plan.Source,
		})
	}
	return out, nil
}
