// Package store persists projects, tasks, dependency edges, milestones and
// rebaseline requests in a local SQLite database. Every task write is
// guarded by a per-project revision so a writer holding an older snapshot
// cannot overwrite newer results.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Sentinel errors.
var (
	ErrProjectNotFound    = errors.New("project not found")
	ErrProjectExists      = errors.New("project already exists")
	ErrStaleRevision      = errors.New("stale project revision")
	ErrRebaselineNotFound = errors.New("rebaseline request not found")
	ErrAlreadyDecided     = errors.New("rebaseline request already decided")
)

// schema contains the DDL executed on first open. Using IF NOT EXISTS makes
// it safe to run on every startup.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    revision   INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
    project_id      TEXT NOT NULL,
    id              TEXT NOT NULL,
    seq             INTEGER NOT NULL,
    name            TEXT NOT NULL DEFAULT '',
    duration_days   INTEGER NOT NULL DEFAULT 0,
    start_date      TEXT NOT NULL DEFAULT '',
    end_date        TEXT NOT NULL DEFAULT '',
    baseline_start  TEXT NOT NULL DEFAULT '',
    baseline_end    TEXT NOT NULL DEFAULT '',
    manual_override BOOLEAN NOT NULL DEFAULT FALSE,
    has_conflict    BOOLEAN NOT NULL DEFAULT FALSE,
    PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS dependencies (
    project_id TEXT NOT NULL,
    task_id    TEXT NOT NULL,
    position   INTEGER NOT NULL,
    encoded    TEXT NOT NULL,
    PRIMARY KEY (project_id, task_id, position)
);

CREATE TABLE IF NOT EXISTS acknowledgements (
    project_id     TEXT NOT NULL,
    task_id        TEXT NOT NULL,
    predecessor_id TEXT NOT NULL,
    expected_date  TEXT NOT NULL,
    PRIMARY KEY (project_id, task_id, predecessor_id)
);

CREATE TABLE IF NOT EXISTS milestones (
    project_id TEXT NOT NULL,
    id         TEXT NOT NULL,
    name       TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS milestone_tasks (
    project_id   TEXT NOT NULL,
    milestone_id TEXT NOT NULL,
    position     INTEGER NOT NULL,
    task_id      TEXT NOT NULL,
    PRIMARY KEY (project_id, milestone_id, position)
);

CREATE TABLE IF NOT EXISTS rebaseline_requests (
    id            TEXT PRIMARY KEY,
    project_id    TEXT NOT NULL,
    task_id       TEXT NOT NULL,
    field         TEXT NOT NULL,
    original_date TEXT NOT NULL DEFAULT '',
    proposed_date TEXT NOT NULL,
    reason        TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    decided_at    TEXT NOT NULL DEFAULT '',
    decision_note TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_rebaseline_project ON rebaseline_requests (project_id, status);
`

// Store is a SQLite-backed project store in WAL mode.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode and
// busy timeout, and creates the schema tables if they do not exist. A nil
// logger means slog.Default().
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite has a single writer; one pooled connection avoids SQLITE_BUSY
	// between connections that would each need their own PRAGMA setup.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Project is a stored project header.
type Project struct {
	ID        string
	Name      string
	Revision  int64
	CreatedAt time.Time
}

// CreateProject inserts a new, empty project at revision 0.
func (s *Store) CreateProject(ctx context.Context, id, name string) (Project, error) {
	if id == "" {
		return Project{}, fmt.Errorf("store: create project: empty id")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name) VALUES (?, ?) ON CONFLICT(id) DO NOTHING`, id, name)
	if err != nil {
		return Project{}, fmt.Errorf("store: create project %q: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Project{}, fmt.Errorf("store: create project rows affected: %w", err)
	}
	if n == 0 {
		return Project{}, fmt.Errorf("%w: %s", ErrProjectExists, id)
	}
	return s.Project(ctx, id)
}

// Project returns the header of one project.
func (s *Store) Project(ctx context.Context, id string) (Project, error) {
	return projectHeader(ctx, s.db, id)
}

// Projects lists every project ordered by id.
func (s *Store) Projects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, revision, created_at FROM projects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate projects: %w", err)
	}
	return projects, nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

func projectHeader(ctx context.Context, q querier, id string) (Project, error) {
	row := q.QueryRowContext(ctx, "SELECT id, name, revision, created_at FROM projects WHERE id = ?", id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, err
}

func scanProject(row scanner) (Project, error) {
	var p Project
	var ts string
	if err := row.Scan(&p.ID, &p.Name, &p.Revision, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Project{}, err
		}
		return Project{}, fmt.Errorf("store: scan project: %w", err)
	}
	created, err := parseTimestamp(ts)
	if err != nil {
		return Project{}, fmt.Errorf("store: parse project timestamp: %w", err)
	}
	p.CreatedAt = created
	return p, nil
}

// bumpRevision advances the project's revision if it still equals expected.
// It returns the new revision, ErrStaleRevision when another writer got there
// first, or ErrProjectNotFound.
func bumpRevision(ctx context.Context, tx *sql.Tx, projectID string, expected int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE projects SET revision = revision + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND revision = ?`, projectID, expected)
	if err != nil {
		return 0, fmt.Errorf("store: bump revision of %q: %w", projectID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: bump revision rows affected: %w", err)
	}
	if n == 1 {
		return expected + 1, nil
	}

	p, err := projectHeader(ctx, tx, projectID)
	if err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: %s at revision %d, expected %d", ErrStaleRevision, projectID, p.Revision, expected)
}

// timestampFormats lists the formats SQLite drivers may produce for
// CURRENT_TIMESTAMP. modernc.org/sqlite typically returns RFC 3339, while
// canonical SQLite returns the space-separated DateTime format.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.DateTime,
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
