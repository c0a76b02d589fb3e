// Package planner is the boundary between persisted projects and the pure
// scheduling engine. Each mutation runs under a per-project lock: it loads
// the project snapshot, applies the change through schedule.Engine, writes
// the affected tasks back in one revision-guarded transaction and then
// publishes a change event.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/papapumpkin/gantry/internal/events"
	"github.com/papapumpkin/gantry/internal/rebaseline"
	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/store"
	"github.com/papapumpkin/gantry/internal/telemetry"
)

// maxAttempts bounds how often a mutation is replayed on a fresh snapshot
// after losing a revision race.
const maxAttempts = 3

// Service runs scheduling operations against stored projects.
type Service struct {
	store  *store.Store
	bus    *events.Bus
	tel    *telemetry.Emitter
	logger *slog.Logger
	now    func() time.Time
	locks  keyedMutex
}

// Option configures a Service.
type Option func(*Service)

// WithBus publishes an event after every committed mutation.
func WithBus(b *events.Bus) Option {
	return func(s *Service) { s.bus = b }
}

// WithTelemetry records engine decisions to e. A nil emitter disables it.
func WithTelemetry(e *telemetry.Emitter) Option {
	return func(s *Service) { s.tel = e }
}

// WithLogger sets the service logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for request timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a Service over st.
func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result describes a committed mutation.
type Result struct {
	ProjectID string
	// Revision is the project revision after the write.
	Revision int64
	// Affected lists every task the mutation changed, in topological order.
	Affected schedule.Affected
	// Tasks holds the new state of the affected tasks that still exist.
	Tasks []schedule.Task
	// Deleted lists tasks removed by the mutation.
	Deleted []string
	// Requests lists rebaseline requests the mutation opened.
	Requests []rebaseline.Request
}

// change is what an engine step hands back to mutate.
type change struct {
	affected schedule.Affected
	deleted  []string
}

// TaskPatch holds the fields of a direct task edit. Nil fields keep their
// current value.
type TaskPatch struct {
	Start        *schedule.Date
	DurationDays *int
}

// CreateProject creates an empty project.
func (s *Service) CreateProject(ctx context.Context, id, name string) (store.Project, error) {
	return s.store.CreateProject(ctx, id, name)
}

// Projects lists every stored project.
func (s *Service) Projects(ctx context.Context) ([]store.Project, error) {
	return s.store.Projects(ctx)
}

// AddTask inserts a task and resolves it against any dependencies it names.
func (s *Service) AddTask(ctx context.Context, projectID string, t schedule.Task) (Result, error) {
	ev := events.Event{Kind: events.TaskCreated, ProjectID: projectID, TaskID: t.ID}
	return s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		if err := eng.AddTask(t); err != nil {
			return change{}, s.rejected(projectID, t.ID, err)
		}
		aff, err := eng.Reschedule(t.ID)
		if err != nil {
			return change{}, err
		}
		return change{affected: withRoot(t.ID, aff)}, nil
	})
}

// UpdateTask applies a direct edit to a task and cascades it to every
// dependent.
func (s *Service) UpdateTask(ctx context.Context, projectID, taskID string, patch TaskPatch) (Result, error) {
	ev := events.Event{Kind: events.TaskUpdated, ProjectID: projectID, TaskID: taskID}
	return s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		cur, ok := eng.Task(taskID)
		if !ok {
			return change{}, fmt.Errorf("%w: %s", schedule.ErrTaskNotFound, taskID)
		}
		start, dur := cur.StartDate, cur.DurationDays
		if patch.Start != nil {
			start = *patch.Start
		}
		if patch.DurationDays != nil {
			dur = *patch.DurationDays
		}
		aff, err := eng.UpdateTask(taskID, start, dur)
		return change{affected: aff}, err
	})
}

// DeleteTask removes a task and reschedules its former dependents.
func (s *Service) DeleteTask(ctx context.Context, projectID, taskID string) (Result, error) {
	ev := events.Event{Kind: events.TaskDeleted, ProjectID: projectID, TaskID: taskID}
	return s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		aff, err := eng.RemoveTask(taskID)
		return change{affected: aff, deleted: []string{taskID}}, err
	})
}

// SetManualOverride pins or unpins a task. Unpinning snaps the task back to
// its constraints and cascades.
func (s *Service) SetManualOverride(ctx context.Context, projectID, taskID string, override bool) (Result, error) {
	ev := events.Event{Kind: events.TaskUpdated, ProjectID: projectID, TaskID: taskID}
	return s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		if err := eng.SetManualOverride(taskID, override); err != nil {
			return change{}, err
		}
		var aff schedule.Affected
		if !override {
			var err error
			if aff, err = eng.Reschedule(taskID); err != nil {
				return change{}, err
			}
		}
		return change{affected: withRoot(taskID, aff)}, nil
	})
}

// AddDependency validates and commits a new edge, then reschedules the
// dependent task and everything downstream of it. A rejected edge leaves
// the project untouched and is recorded in telemetry.
func (s *Service) AddDependency(ctx context.Context, projectID, taskID, predecessorID string, typ schedule.DependencyType, lagDays int) (schedule.EdgeID, Result, error) {
	var edgeID schedule.EdgeID
	ev := events.Event{Kind: events.DependencyAdded, ProjectID: projectID, TaskID: taskID}
	res, err := s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		id, err := eng.ValidateAndAddDependency(taskID, predecessorID, typ, lagDays)
		if err != nil {
			return change{}, s.rejected(projectID, taskID, err)
		}
		edgeID = id
		aff, err := eng.Reschedule(taskID)
		if err != nil {
			return change{}, err
		}
		return change{affected: withRoot(taskID, aff)}, nil
	})
	return edgeID, res, err
}

// RemoveDependency deletes an edge and reschedules the dependent.
func (s *Service) RemoveDependency(ctx context.Context, projectID, taskID, predecessorID string) (Result, error) {
	ev := events.Event{Kind: events.DependencyRemoved, ProjectID: projectID, TaskID: taskID}
	return s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		aff, err := eng.RemoveDependency(taskID, predecessorID)
		return change{affected: aff}, err
	})
}

// Cascade propagates taskID's current dates to its dependents.
func (s *Service) Cascade(ctx context.Context, projectID, taskID string) (Result, error) {
	ev := events.Event{Kind: events.TaskUpdated, ProjectID: projectID, TaskID: taskID}
	return s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		aff, err := eng.Cascade(taskID)
		return change{affected: aff}, err
	})
}

// RecomputeAll resolves every task of the project under the project lock.
func (s *Service) RecomputeAll(ctx context.Context, projectID string) (Result, error) {
	ev := events.Event{Kind: events.TaskUpdated, ProjectID: projectID}
	return s.mutate(ctx, projectID, ev, func(eng *schedule.Engine) (change, error) {
		return change{affected: eng.RecomputeAll()}, nil
	})
}

// mutate runs fn against a fresh engine for projectID and persists what it
// changed. If another writer commits in between, the whole step is replayed
// on the newer snapshot.
func (s *Service) mutate(ctx context.Context, projectID string, ev events.Event, fn func(*schedule.Engine) (change, error)) (Result, error) {
	unlock := s.locks.Lock(projectID)
	defer unlock()

	for attempt := 1; ; attempt++ {
		snap, eng, err := s.load(ctx, projectID)
		if err != nil {
			return Result{}, err
		}
		ch, err := fn(eng)
		if err != nil {
			return Result{}, err
		}

		upserts := eng.TasksByID(ch.affected)
		if len(upserts) == 0 && len(ch.deleted) == 0 {
			return Result{ProjectID: projectID, Revision: snap.Project.Revision}, nil
		}

		rev, err := s.store.SaveTasks(ctx, projectID, snap.Project.Revision, upserts, ch.deleted)
		if errors.Is(err, store.ErrStaleRevision) && attempt < maxAttempts {
			s.logger.Debug("replaying mutation on newer snapshot", "project", projectID, "attempt", attempt)
			continue
		}
		if err != nil {
			return Result{}, err
		}

		res := Result{
			ProjectID: projectID,
			Revision:  rev,
			Affected:  ch.affected,
			Tasks:     upserts,
			Deleted:   ch.deleted,
		}
		ev.Revision = rev
		s.committed(ev, res)
		return res, nil
	}
}

func (s *Service) load(ctx context.Context, projectID string) (store.Snapshot, *schedule.Engine, error) {
	snap, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return store.Snapshot{}, nil, err
	}
	eng, err := schedule.NewEngine(snap.Tasks, schedule.WithLogger(s.logger.With("project", projectID)))
	if err != nil {
		return store.Snapshot{}, nil, fmt.Errorf("project %s: %w", projectID, err)
	}
	return snap, eng, nil
}

// committed publishes ev and records the mutation, its cascade and any
// conflicts it left behind.
func (s *Service) committed(ev events.Event, res Result) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
	s.record(string(ev.Kind), ev.ProjectID, ev.TaskID, map[string]any{"revision": res.Revision})
	if len(res.Affected) > 0 {
		s.record(telemetry.KindCascade, ev.ProjectID, ev.TaskID, map[string]any{
			"affected": res.Affected,
			"revision": res.Revision,
		})
	}
	for _, t := range res.Tasks {
		if t.HasConflict {
			s.record(telemetry.KindConflictDetected, ev.ProjectID, t.ID, map[string]any{
				"start":    t.StartDate.String(),
				"end":      t.EndDate.String(),
				"override": t.ManualOverride,
			})
		}
	}
	s.logger.Info("committed",
		"project", ev.ProjectID, "kind", ev.Kind, "task", ev.TaskID,
		"revision", res.Revision, "affected", len(res.Affected))
}

// rejected records a validation failure and returns err unchanged.
func (s *Service) rejected(projectID, taskID string, err error) error {
	var verr *schedule.ValidationError
	if errors.As(err, &verr) {
		s.record(telemetry.KindDependencyRejected, projectID, taskID, map[string]any{
			"predecessor": verr.PredecessorID,
			"kind":        verr.Kind,
			"reason":      verr.Reason,
		})
		s.logger.Info("dependency rejected", "project", projectID, "task", taskID,
			"predecessor", verr.PredecessorID, "kind", verr.Kind)
	}
	return err
}

func (s *Service) record(kind, projectID, taskID string, data any) {
	if err := s.tel.Record(kind, projectID, taskID, data); err != nil {
		s.logger.Warn("telemetry write failed", "kind", kind, "err", err)
	}
}

// withRoot returns aff with root prepended unless it is already present.
func withRoot(root string, aff schedule.Affected) schedule.Affected {
	if aff.Contains(root) {
		return aff
	}
	return append(schedule.Affected{root}, aff...)
}
