package planner

import (
	"context"
	"fmt"

	"github.com/papapumpkin/gantry/internal/events"
	"github.com/papapumpkin/gantry/internal/schedule"
)

// MilestoneView pairs a milestone with its derived date range.
type MilestoneView struct {
	Milestone schedule.Milestone
	Dates     schedule.MilestoneDates
}

// SetMilestone creates or replaces a milestone. Every member must be a task
// of the project.
func (s *Service) SetMilestone(ctx context.Context, projectID string, m schedule.Milestone) error {
	if m.ID == "" {
		return fmt.Errorf("set milestone: empty id")
	}
	unlock := s.locks.Lock(projectID)
	defer unlock()

	snap, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	tasks := snap.TaskMap()
	for _, id := range m.TaskIDs {
		if _, ok := tasks[id]; !ok {
			return fmt.Errorf("milestone %s: %w: %s", m.ID, schedule.ErrTaskNotFound, id)
		}
	}
	if err := s.store.SaveMilestone(ctx, projectID, m); err != nil {
		return err
	}

	dates := schedule.AggregateMilestone(m, tasks)
	if s.bus != nil {
		s.bus.Publish(events.Event{Kind: events.MilestoneUpdated, ProjectID: projectID, Revision: snap.Project.Revision})
	}
	s.record(string(events.MilestoneUpdated), projectID, "", map[string]any{
		"milestone": m.ID,
		"start":     dates.Start.String(),
		"end":       dates.End.String(),
	})
	return nil
}

// Milestones returns every milestone of the project with its current range.
func (s *Service) Milestones(ctx context.Context, projectID string) ([]MilestoneView, error) {
	snap, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	tasks := snap.TaskMap()
	views := make([]MilestoneView, 0, len(snap.Milestones))
	for _, m := range snap.Milestones {
		views = append(views, MilestoneView{Milestone: m, Dates: schedule.AggregateMilestone(m, tasks)})
	}
	return views, nil
}

// Milestone returns one milestone with its current range.
func (s *Service) Milestone(ctx context.Context, projectID, milestoneID string) (MilestoneView, error) {
	views, err := s.Milestones(ctx, projectID)
	if err != nil {
		return MilestoneView{}, err
	}
	for _, v := range views {
		if v.Milestone.ID == milestoneID {
			return v, nil
		}
	}
	return MilestoneView{}, fmt.Errorf("milestone %s not found in project %s", milestoneID, projectID)
}
