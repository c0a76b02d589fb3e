package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/papapumpkin/gantry/internal/rebaseline"
	"github.com/papapumpkin/gantry/internal/schedule"
)

const rebaselineColumns = `id, project_id, task_id, field, original_date, proposed_date,
	reason, status, created_at, decided_at, decision_note`

// SaveRebaseline inserts a new request.
func (s *Store) SaveRebaseline(ctx context.Context, r rebaseline.Request) error {
	if _, err := projectHeader(ctx, s.db, r.ProjectID); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rebaseline_requests (`+rebaselineColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, r.TaskID, string(r.Field), r.OriginalDate.String(), r.ProposedDate.String(),
		r.Reason, string(r.Status), formatTimestamp(r.CreatedAt), formatTimestamp(r.DecidedAt), r.DecisionNote)
	if err != nil {
		return fmt.Errorf("store: insert rebaseline %q: %w", r.ID, err)
	}
	return nil
}

// GetRebaseline returns one request by id.
func (s *Store) GetRebaseline(ctx context.Context, id string) (rebaseline.Request, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+rebaselineColumns+` FROM rebaseline_requests WHERE id = ?`, id)
	r, err := scanRebaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rebaseline.Request{}, fmt.Errorf("%w: %s", ErrRebaselineNotFound, id)
	}
	return r, err
}

// ListRebaselines returns a project's requests, oldest first. An empty
// status lists all of them.
func (s *Store) ListRebaselines(ctx context.Context, projectID string, status rebaseline.Status) ([]rebaseline.Request, error) {
	q := `SELECT ` + rebaselineColumns + ` FROM rebaseline_requests WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		q += ` AND status = ?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list rebaselines of %q: %w", projectID, err)
	}
	defer rows.Close()

	var out []rebaseline.Request
	for rows.Next() {
		r, err := scanRebaseline(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate rebaselines: %w", err)
	}
	return out, nil
}

// DecideRebaseline records a decided request and, when task is non-nil,
// writes the task's new baseline in the same transaction under the revision
// guard. The request must still be pending in the database, otherwise
// ErrAlreadyDecided is returned. It returns the project's revision after
// the write.
func (s *Store) DecideRebaseline(ctx context.Context, r rebaseline.Request, task *schedule.Task, expectedRevision int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx for rebaseline: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	res, err := tx.ExecContext(ctx, `
		UPDATE rebaseline_requests SET status = ?, decided_at = ?, decision_note = ?
		WHERE id = ? AND status = ?`,
		string(r.Status), formatTimestamp(r.DecidedAt), r.DecisionNote, r.ID, string(rebaseline.StatusPending))
	if err != nil {
		return 0, fmt.Errorf("store: decide rebaseline %q: %w", r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: decide rebaseline rows affected: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", ErrAlreadyDecided, r.ID)
	}

	rev := expectedRevision
	if task != nil {
		if rev, err = bumpRevision(ctx, tx, r.ProjectID, expectedRevision); err != nil {
			return 0, err
		}
		if err := upsertTasks(ctx, tx, r.ProjectID, []schedule.Task{*task}); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit rebaseline: %w", err)
	}
	return rev, nil
}

func scanRebaseline(row scanner) (rebaseline.Request, error) {
	var r rebaseline.Request
	var field, status, original, proposed, created, decided string
	if err := row.Scan(&r.ID, &r.ProjectID, &r.TaskID, &field, &original, &proposed,
		&r.Reason, &status, &created, &decided, &r.DecisionNote); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("store: scan rebaseline: %w", err)
	}
	r.Field = rebaseline.Field(field)
	r.Status = rebaseline.Status(status)

	var err error
	if r.OriginalDate, err = schedule.ParseDate(original); err != nil {
		return r, fmt.Errorf("store: rebaseline %s: %w", r.ID, err)
	}
	if r.ProposedDate, err = schedule.ParseDate(proposed); err != nil {
		return r, fmt.Errorf("store: rebaseline %s: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTimestamp(created); err != nil {
		return r, fmt.Errorf("store: rebaseline %s: %w", r.ID, err)
	}
	if r.DecidedAt, err = parseTimestamp(decided); err != nil {
		return r, fmt.Errorf("store: rebaseline %s: %w", r.ID, err)
	}
	return r, nil
}
