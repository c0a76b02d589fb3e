package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/papapumpkin/gantry/internal/schedule"
)

// SaveMilestone creates or replaces a milestone and its member list.
// Milestones are derived views over tasks, so the project revision is not
// advanced.
func (s *Store) SaveMilestone(ctx context.Context, projectID string, m schedule.Milestone) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx for milestone: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if _, err := projectHeader(ctx, tx, projectID); err != nil {
		return err
	}
	if err := upsertMilestone(ctx, tx, projectID, m); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit milestone: %w", err)
	}
	return nil
}

func upsertMilestone(ctx context.Context, tx *sql.Tx, projectID string, m schedule.Milestone) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO milestones (project_id, id, name) VALUES (?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET name = excluded.name`,
		projectID, m.ID, m.Name); err != nil {
		return fmt.Errorf("store: upsert milestone %q: %w", m.ID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM milestone_tasks WHERE project_id = ? AND milestone_id = ?`, projectID, m.ID); err != nil {
		return fmt.Errorf("store: clear milestone %q: %w", m.ID, err)
	}
	for pos, taskID := range m.TaskIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO milestone_tasks (project_id, milestone_id, position, task_id) VALUES (?, ?, ?, ?)`,
			projectID, m.ID, pos, taskID); err != nil {
			return fmt.Errorf("store: add %q to milestone %q: %w", taskID, m.ID, err)
		}
	}
	return nil
}

func loadMilestones(ctx context.Context, q querier, projectID string) ([]schedule.Milestone, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT m.id, m.name, COALESCE(mt.task_id, '')
		FROM milestones m
		LEFT JOIN milestone_tasks mt ON mt.project_id = m.project_id AND mt.milestone_id = m.id
		WHERE m.project_id = ?
		ORDER BY m.id, mt.position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: query milestones of %q: %w", projectID, err)
	}
	defer rows.Close()

	var milestones []schedule.Milestone
	for rows.Next() {
		var id, name, taskID string
		if err := rows.Scan(&id, &name, &taskID); err != nil {
			return nil, fmt.Errorf("store: scan milestone: %w", err)
		}
		if n := len(milestones); n == 0 || milestones[n-1].ID != id {
			milestones = append(milestones, schedule.Milestone{ID: id, Name: name})
		}
		if taskID != "" {
			last := &milestones[len(milestones)-1]
			last.TaskIDs = append(last.TaskIDs, taskID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate milestones: %w", err)
	}
	return milestones, nil
}
