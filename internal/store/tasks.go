package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/papapumpkin/gantry/internal/schedule"
)

// Snapshot is everything the engine needs for one project, read at a single
// revision.
type Snapshot struct {
	Project    Project
	Tasks      []schedule.Task
	Milestones []schedule.Milestone
}

// TaskMap indexes the snapshot's tasks by id.
func (s Snapshot) TaskMap() map[string]schedule.Task {
	m := make(map[string]schedule.Task, len(s.Tasks))
	for _, t := range s.Tasks {
		m[t.ID] = t
	}
	return m
}

// LoadProject reads a project's tasks (in creation order), their decoded
// dependency edges and its milestones in one read transaction. Dependency
// strings that do not decode cleanly are logged and loaded leniently.
func (s *Store) LoadProject(ctx context.Context, projectID string) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("store: begin load tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // nothing to commit

	p, err := projectHeader(ctx, tx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	tasks, err := s.loadTasks(ctx, tx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	milestones, err := loadMilestones(ctx, tx, projectID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Project: p, Tasks: tasks, Milestones: milestones}, nil
}

func (s *Store) loadTasks(ctx context.Context, q querier, projectID string) ([]schedule.Task, error) {
	const query = `SELECT id, seq, name, duration_days, start_date, end_date,
		baseline_start, baseline_end, manual_override, has_conflict
		FROM tasks WHERE project_id = ? ORDER BY seq, id`
	rows, err := q.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: query tasks of %q: %w", projectID, err)
	}
	defer rows.Close()

	var tasks []schedule.Task
	index := make(map[string]int)
	for rows.Next() {
		var t schedule.Task
		var start, end, bStart, bEnd string
		if err := rows.Scan(&t.ID, &t.Seq, &t.Name, &t.DurationDays, &start, &end,
			&bStart, &bEnd, &t.ManualOverride, &t.HasConflict); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		dates := []struct {
			raw string
			dst *schedule.Date
		}{{start, &t.StartDate}, {end, &t.EndDate}, {bStart, &t.BaselineStart}, {bEnd, &t.BaselineEnd}}
		for _, d := range dates {
			if *d.dst, err = schedule.ParseDate(d.raw); err != nil {
				return nil, fmt.Errorf("store: task %s: %w", t.ID, err)
			}
		}
		index[t.ID] = len(tasks)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate tasks: %w", err)
	}

	deps, err := q.QueryContext(ctx,
		`SELECT task_id, encoded FROM dependencies WHERE project_id = ? ORDER BY task_id, position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: query dependencies of %q: %w", projectID, err)
	}
	defer deps.Close()

	for deps.Next() {
		var taskID, encoded string
		if err := deps.Scan(&taskID, &encoded); err != nil {
			return nil, fmt.Errorf("store: scan dependency: %w", err)
		}
		i, ok := index[taskID]
		if !ok {
			s.logger.Warn("dependency row for missing task", "project", projectID, "task", taskID)
			continue
		}
		if verr := schedule.ValidateEncoding(encoded); verr != nil {
			s.logger.Warn("malformed dependency encoding",
				"project", projectID, "task", taskID, "encoded", encoded, "err", verr,
				"kind", schedule.KindMalformedEncoding)
		}
		tasks[i].Dependencies = append(tasks[i].Dependencies, schedule.ParseDependency(encoded))
	}
	if err := deps.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate dependencies: %w", err)
	}

	acks, err := q.QueryContext(ctx,
		`SELECT task_id, predecessor_id, expected_date FROM acknowledgements WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: query acknowledgements of %q: %w", projectID, err)
	}
	defer acks.Close()

	for acks.Next() {
		var taskID, predID, raw string
		if err := acks.Scan(&taskID, &predID, &raw); err != nil {
			return nil, fmt.Errorf("store: scan acknowledgement: %w", err)
		}
		i, ok := index[taskID]
		if !ok {
			continue
		}
		date, err := schedule.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("store: acknowledgement of %s: %w", taskID, err)
		}
		if tasks[i].Acknowledged == nil {
			tasks[i].Acknowledged = make(map[string]schedule.Date)
		}
		tasks[i].Acknowledged[predID] = date
	}
	if err := acks.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate acknowledgements: %w", err)
	}
	return tasks, nil
}

// SaveTasks writes upserts and deletes for one project in a single
// transaction, provided the project is still at expectedRevision. Each
// upserted task's dependency list is replaced wholesale. Deleted tasks are
// also removed from milestones. It returns the new revision, or
// ErrStaleRevision if another writer committed first, in which case nothing
// is written.
func (s *Store) SaveTasks(ctx context.Context, projectID string, expectedRevision int64, upserts []schedule.Task, deletes []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx for tasks: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rev, err := writeTasks(ctx, tx, projectID, expectedRevision, upserts, deletes)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit tasks: %w", err)
	}
	return rev, nil
}

// ReplacePlan is SaveTasks for a whole imported plan: in the same
// transaction it also replaces the project's milestones with milestones,
// dropping any the plan no longer lists.
func (s *Store) ReplacePlan(ctx context.Context, projectID string, expectedRevision int64, upserts []schedule.Task, deletes []string, milestones []schedule.Milestone) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx for plan: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	rev, err := writeTasks(ctx, tx, projectID, expectedRevision, upserts, deletes)
	if err != nil {
		return 0, err
	}
	for _, q := range []string{
		`DELETE FROM milestone_tasks WHERE project_id = ?`,
		`DELETE FROM milestones WHERE project_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, projectID); err != nil {
			return 0, fmt.Errorf("store: clear milestones of %q: %w", projectID, err)
		}
	}
	for _, m := range milestones {
		if err := upsertMilestone(ctx, tx, projectID, m); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit plan: %w", err)
	}
	return rev, nil
}

func writeTasks(ctx context.Context, tx *sql.Tx, projectID string, expectedRevision int64, upserts []schedule.Task, deletes []string) (int64, error) {
	rev, err := bumpRevision(ctx, tx, projectID, expectedRevision)
	if err != nil {
		return 0, err
	}
	if err := upsertTasks(ctx, tx, projectID, upserts); err != nil {
		return 0, err
	}
	for _, id := range deletes {
		if err := deleteTask(ctx, tx, projectID, id); err != nil {
			return 0, err
		}
	}
	return rev, nil
}

func upsertTasks(ctx context.Context, tx *sql.Tx, projectID string, tasks []schedule.Task) error {
	if len(tasks) == 0 {
		return nil
	}
	const q = `
		INSERT INTO tasks (project_id, id, seq, name, duration_days, start_date, end_date,
			baseline_start, baseline_end, manual_override, has_conflict)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, id) DO UPDATE SET
			seq             = excluded.seq,
			name            = excluded.name,
			duration_days   = excluded.duration_days,
			start_date      = excluded.start_date,
			end_date        = excluded.end_date,
			baseline_start  = excluded.baseline_start,
			baseline_end    = excluded.baseline_end,
			manual_override = excluded.manual_override,
			has_conflict    = excluded.has_conflict`

	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		return fmt.Errorf("store: prepare task upsert: %w", err)
	}
	defer stmt.Close()

	depStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO dependencies (project_id, task_id, position, encoded) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare dependency insert: %w", err)
	}
	defer depStmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, projectID, t.ID, t.Seq, t.Name, t.DurationDays,
			t.StartDate.String(), t.EndDate.String(), t.BaselineStart.String(), t.BaselineEnd.String(),
			t.ManualOverride, t.HasConflict); err != nil {
			return fmt.Errorf("store: upsert task %q: %w", t.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM dependencies WHERE project_id = ? AND task_id = ?`, projectID, t.ID); err != nil {
			return fmt.Errorf("store: clear dependencies of %q: %w", t.ID, err)
		}
		for pos, raw := range schedule.FormatDependencies(t.Dependencies) {
			if _, err := depStmt.ExecContext(ctx, projectID, t.ID, pos, raw); err != nil {
				return fmt.Errorf("store: insert dependency %q of %q: %w", raw, t.ID, err)
			}
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM acknowledgements WHERE project_id = ? AND task_id = ?`, projectID, t.ID); err != nil {
			return fmt.Errorf("store: clear acknowledgements of %q: %w", t.ID, err)
		}
		for pred, date := range t.Acknowledged {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO acknowledgements (project_id, task_id, predecessor_id, expected_date) VALUES (?, ?, ?, ?)`,
				projectID, t.ID, pred, date.String()); err != nil {
				return fmt.Errorf("store: acknowledge %s for %q: %w", pred, t.ID, err)
			}
		}
	}
	return nil
}

func deleteTask(ctx context.Context, tx *sql.Tx, projectID, id string) error {
	stmts := []string{
		`DELETE FROM tasks WHERE project_id = ? AND id = ?`,
		`DELETE FROM dependencies WHERE project_id = ? AND task_id = ?`,
		`DELETE FROM acknowledgements WHERE project_id = ? AND task_id = ?`,
		`DELETE FROM milestone_tasks WHERE project_id = ? AND task_id = ?`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q, projectID, id); err != nil {
			return fmt.Errorf("store: delete task %q: %w", id, err)
		}
	}
	return nil
}
