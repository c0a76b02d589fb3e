package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/papapumpkin/gantry/internal/events"
	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/store"
	"github.com/papapumpkin/gantry/internal/telemetry"
)

// Recomputer listens on the change bus and recomputes each project that
// changed. Bursts of events for the same project collapse into one run.
//
// A run loads the snapshot, resolves every task outside the project lock
// and writes back only if the project is still at the revision it read.
// When another writer got there first the results are thrown away; that
// writer's own event schedules the next run.
type Recomputer struct {
	store    *store.Store
	bus      *events.Bus
	tel      *telemetry.Emitter
	logger   *slog.Logger
	debounce time.Duration
	queue    int

	// beforeSave runs between computing and writing. Tests use it to
	// interleave a competing write.
	beforeSave func(projectID string)
}

// RecomputerOption configures a Recomputer.
type RecomputerOption func(*Recomputer)

// WithDebounce sets how long a project must stay quiet before it is
// recomputed.
func WithDebounce(d time.Duration) RecomputerOption {
	return func(r *Recomputer) { r.debounce = d }
}

// WithQueueSize sets the bus subscription buffer.
func WithQueueSize(n int) RecomputerOption {
	return func(r *Recomputer) { r.queue = n }
}

// WithRecomputeLogger sets the logger.
func WithRecomputeLogger(l *slog.Logger) RecomputerOption {
	return func(r *Recomputer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecomputeTelemetry records each run to e.
func WithRecomputeTelemetry(e *telemetry.Emitter) RecomputerOption {
	return func(r *Recomputer) { r.tel = e }
}

// NewRecomputer creates a Recomputer. Call Run to start it.
func NewRecomputer(st *store.Store, bus *events.Bus, opts ...RecomputerOption) *Recomputer {
	r := &Recomputer{
		store:    st,
		bus:      bus,
		logger:   slog.Default(),
		debounce: 200 * time.Millisecond,
		queue:    64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes events until ctx is cancelled or the bus closes. Projects
// still pending at that point are not recomputed.
func (r *Recomputer) Run(ctx context.Context) error {
	sub := r.bus.Subscribe(r.queue)
	defer r.bus.Unsubscribe(sub)

	tick := r.debounce
	if tick <= 0 {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	// Debounce: track last event time per project.
	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if ev.ProjectID != "" {
				pending[ev.ProjectID] = time.Now()
			}

		case <-ticker.C:
			now := time.Now()
			var due []string
			for id, last := range pending {
				if now.Sub(last) >= r.debounce {
					due = append(due, id)
				}
			}
			sort.Strings(due)
			for _, id := range due {
				delete(pending, id)
				if _, err := r.Recompute(ctx, id); err != nil && !errors.Is(err, store.ErrStaleRevision) {
					r.logger.Error("recompute failed", "project", id, "err", err)
				}
			}
		}
	}
}

// Recompute resolves every task of one project and persists what changed.
// It returns the changed task ids, or an error wrapping
// store.ErrStaleRevision if the project moved on while it was computing.
func (r *Recomputer) Recompute(ctx context.Context, projectID string) (schedule.Affected, error) {
	snap, err := r.store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	eng, err := schedule.NewEngine(snap.Tasks, schedule.WithLogger(r.logger.With("project", projectID)))
	if err != nil {
		return nil, fmt.Errorf("recompute %s: %w", projectID, err)
	}

	affected := eng.RecomputeAll()
	if len(affected) == 0 {
		r.logger.Debug("recompute: nothing to do", "project", projectID, "revision", snap.Project.Revision)
		return nil, nil
	}

	if r.beforeSave != nil {
		r.beforeSave(projectID)
	}
	rev, err := r.store.SaveTasks(ctx, projectID, snap.Project.Revision, eng.TasksByID(affected), nil)
	if errors.Is(err, store.ErrStaleRevision) {
		r.logger.Info("recompute abandoned, project changed underneath",
			"project", projectID, "read_revision", snap.Project.Revision)
		r.record(telemetry.KindRecomputeAbandoned, projectID, map[string]any{
			"read_revision": snap.Project.Revision,
			"affected":      affected,
		})
		return nil, fmt.Errorf("recompute %s: %w", projectID, err)
	}
	if err != nil {
		return nil, err
	}

	r.logger.Info("recomputed", "project", projectID, "revision", rev, "affected", len(affected))
	r.record(telemetry.KindRecompute, projectID, map[string]any{
		"revision": rev,
		"affected": affected,
	})
	return affected, nil
}

func (r *Recomputer) record(kind, projectID string, data any) {
	if err := r.tel.Record(kind, projectID, "", data); err != nil {
		r.logger.Warn("telemetry write failed", "kind", kind, "err", err)
	}
}
