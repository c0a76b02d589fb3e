package planner

import (
	"context"
	"fmt"

	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/store"
)

// Snapshot returns the stored project as the engine sees it.
func (s *Service) Snapshot(ctx context.Context, projectID string) (store.Snapshot, error) {
	snap, eng, err := s.load(ctx, projectID)
	if err != nil {
		return store.Snapshot{}, err
	}
	// Edges the graph builder dropped are not part of the effective schedule.
	snap.Tasks = eng.Tasks()
	return snap, nil
}

// CriticalPath returns the project's longest chain of dependent tasks.
func (s *Service) CriticalPath(ctx context.Context, projectID string) (schedule.CriticalPath, error) {
	_, eng, err := s.load(ctx, projectID)
	if err != nil {
		return schedule.CriticalPath{}, err
	}
	return eng.CriticalPath()
}

// Slack returns each task's float against the critical path.
func (s *Service) Slack(ctx context.Context, projectID string) (map[string]int, error) {
	_, eng, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return eng.Slack()
}

// Conflicts lists the tasks whose dates violate an incoming edge.
func (s *Service) Conflicts(ctx context.Context, projectID string) ([]schedule.TaskConflicts, error) {
	_, eng, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return eng.Conflicts(), nil
}

// Streams partitions the project into independent chains of work.
func (s *Service) Streams(ctx context.Context, projectID string) ([]schedule.Stream, error) {
	_, eng, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return eng.Streams()
}

// DependentTasks returns the tasks that directly depend on taskID.
func (s *Service) DependentTasks(ctx context.Context, projectID, taskID string) ([]schedule.Task, error) {
	_, eng, err := s.load(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if _, ok := eng.Task(taskID); !ok {
		return nil, fmt.Errorf("%w: %s", schedule.ErrTaskNotFound, taskID)
	}
	return eng.DependentTasks(taskID), nil
}
