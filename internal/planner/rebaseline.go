package planner

import (
	"context"
	"fmt"

	"github.com/papapumpkin/gantry/internal/events"
	"github.com/papapumpkin/gantry/internal/rebaseline"
	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/telemetry"
)

// RequestRebaseline opens a pending request to move one baseline bound of a
// task.
func (s *Service) RequestRebaseline(ctx context.Context, projectID, taskID string, field rebaseline.Field, proposed schedule.Date, reason string) (rebaseline.Request, error) {
	snap, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return rebaseline.Request{}, err
	}
	task, ok := snap.TaskMap()[taskID]
	if !ok {
		return rebaseline.Request{}, fmt.Errorf("%w: %s", schedule.ErrTaskNotFound, taskID)
	}
	req, err := rebaseline.New(projectID, task, field, proposed, reason, s.now())
	if err != nil {
		return rebaseline.Request{}, err
	}
	if err := s.store.SaveRebaseline(ctx, req); err != nil {
		return rebaseline.Request{}, err
	}
	s.record(telemetry.KindRebaselineRequested, projectID, taskID, map[string]any{
		"request":  req.ID,
		"field":    req.Field,
		"original": req.OriginalDate.String(),
		"proposed": req.ProposedDate.String(),
	})
	return req, nil
}

// DecideRebaseline approves or rejects a pending request. Approval writes
// the task's new baseline and clears its conflict flag in the same
// transaction that records the decision. The violations the approval
// accepts are stored on the task so later recomputes keep the flag cleared
// until one of those constraints moves.
func (s *Service) DecideRebaseline(ctx context.Context, requestID string, approve bool, note string) (rebaseline.Request, error) {
	req, err := s.store.GetRebaseline(ctx, requestID)
	if err != nil {
		return rebaseline.Request{}, err
	}

	unlock := s.locks.Lock(req.ProjectID)
	defer unlock()

	snap, err := s.store.LoadProject(ctx, req.ProjectID)
	if err != nil {
		return rebaseline.Request{}, err
	}
	var target *schedule.Task
	if t, ok := snap.TaskMap()[req.TaskID]; ok {
		target = &t
	}
	if err := req.Decide(target, approve, note, s.now()); err != nil {
		s.record(telemetry.KindRebaselineDecided, req.ProjectID, req.TaskID, map[string]any{
			"request": req.ID,
			"error":   err.Error(),
		})
		return rebaseline.Request{}, err
	}

	var write *schedule.Task
	if approve {
		if write, err = s.acknowledge(snap.Tasks, *target); err != nil {
			return rebaseline.Request{}, err
		}
	}
	rev, err := s.store.DecideRebaseline(ctx, req, write, snap.Project.Revision)
	if err != nil {
		return rebaseline.Request{}, err
	}

	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.RebaselineDecided, ProjectID: req.ProjectID, TaskID: req.TaskID, Revision: rev})
	}
	s.record(telemetry.KindRebaselineDecided, req.ProjectID, req.TaskID, map[string]any{
		"request":  req.ID,
		"status":   req.Status,
		"field":    req.Field,
		"proposed": req.ProposedDate.String(),
		"revision": rev,
	})
	s.logger.Info("rebaseline decided", "project", req.ProjectID, "task", req.TaskID,
		"request", req.ID, "status", req.Status)
	return req, nil
}

// ListRebaselines lists a project's requests, optionally filtered by status.
func (s *Service) ListRebaselines(ctx context.Context, projectID string, status rebaseline.Status) ([]rebaseline.Request, error) {
	if _, err := s.store.Project(ctx, projectID); err != nil {
		return nil, err
	}
	return s.store.ListRebaselines(ctx, projectID, status)
}

// acknowledge returns target with every constraint it currently violates
// recorded as accepted.
func (s *Service) acknowledge(tasks []schedule.Task, target schedule.Task) (*schedule.Task, error) {
	all := make([]schedule.Task, len(tasks))
	for i, t := range tasks {
		if t.ID == target.ID {
			t = target
		}
		all[i] = t
	}
	eng, err := schedule.NewEngine(all, schedule.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	if _, err := eng.AcknowledgeConflicts(target.ID); err != nil {
		return nil, err
	}
	acked, _ := eng.Task(target.ID)
	target.Acknowledged = acked.Acknowledged
	target.HasConflict = false
	return &target, nil
}
