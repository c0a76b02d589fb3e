package planner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papapumpkin/gantry/internal/events"
	"github.com/papapumpkin/gantry/internal/planfile"
	"github.com/papapumpkin/gantry/internal/rebaseline"
	"github.com/papapumpkin/gantry/internal/schedule"
	"github.com/papapumpkin/gantry/internal/store"
	"github.com/papapumpkin/gantry/internal/telemetry"
)

type fixture struct {
	svc     *Service
	store   *store.Store
	bus     *events.Bus
	telPath string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	st, err := store.Open(context.Background(), filepath.Join(dir, "gantry.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	telPath := filepath.Join(dir, "telemetry.jsonl")
	tel, err := telemetry.NewEmitter(telPath)
	require.NoError(t, err)
	t.Cleanup(func() { tel.Close() })

	bus := events.NewBus(logger)
	t.Cleanup(bus.Close)

	now := time.Date(2025, time.January, 2, 9, 0, 0, 0, time.UTC)
	svc := New(st, WithBus(bus), WithTelemetry(tel), WithLogger(logger), WithClock(func() time.Time { return now }))
	return fixture{svc: svc, store: st, bus: bus, telPath: telPath}
}

func (f fixture) telemetry(t *testing.T) []telemetry.Event {
	t.Helper()
	file, err := os.Open(f.telPath)
	require.NoError(t, err)
	defer file.Close()
	evts, err := telemetry.ReadEvents(file)
	require.NoError(t, err)
	return evts
}

func jan(d int) schedule.Date { return schedule.D(2025, time.January, d) }

func dep(pred string, typ schedule.DependencyType, lag int) schedule.DependencyEdge {
	return schedule.DependencyEdge{PredecessorID: pred, Type: typ, LagDays: lag}
}

// seed creates project p with T2 (Jan 1..10) ← T1 (FS +2) ← T3 (FS 0).
func seed(t *testing.T, f fixture) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.CreateProject(ctx, "p", "Pilot")
	require.NoError(t, err)

	tasks := []schedule.Task{
		{ID: "T2", DurationDays: 9, StartDate: jan(1)},
		{ID: "T1", DurationDays: 3, StartDate: jan(1), Dependencies: []schedule.DependencyEdge{dep("T2", schedule.FinishToStart, 2)}},
		{ID: "T3", DurationDays: 1, StartDate: jan(1), Dependencies: []schedule.DependencyEdge{dep("T1", schedule.FinishToStart, 0)}},
	}
	for _, task := range tasks {
		_, err := f.svc.AddTask(ctx, "p", task)
		require.NoError(t, err)
	}
}

func task(t *testing.T, f fixture, id string) schedule.Task {
	t.Helper()
	snap, err := f.store.LoadProject(context.Background(), "p")
	require.NoError(t, err)
	got, ok := snap.TaskMap()[id]
	require.True(t, ok, "task %s missing", id)
	return got
}

func TestService_CascadeScenario(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	assert.Equal(t, jan(12), task(t, f, "T1").StartDate)
	assert.Equal(t, jan(15), task(t, f, "T3").StartDate)

	dur := 14
	res, err := f.svc.UpdateTask(ctx, "p", "T2", TaskPatch{DurationDays: &dur})
	require.NoError(t, err)
	assert.Equal(t, schedule.Affected{"T2", "T1", "T3"}, res.Affected)
	require.Len(t, res.Tasks, 3)

	assert.Equal(t, jan(15), task(t, f, "T2").EndDate)
	assert.Equal(t, jan(17), task(t, f, "T1").StartDate)
	assert.Equal(t, jan(20), task(t, f, "T3").StartDate)

	again, err := f.svc.Cascade(ctx, "p", "T2")
	require.NoError(t, err)
	assert.Empty(t, again.Affected, "cascade must be idempotent")
	assert.Equal(t, res.Revision, again.Revision)
}

func TestService_RejectedDependency(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	before, err := f.store.Project(ctx, "p")
	require.NoError(t, err)

	_, _, err = f.svc.AddDependency(ctx, "p", "T2", "T3", schedule.FinishToStart, 0)
	require.ErrorIs(t, err, schedule.ErrCyclicDependency)

	_, _, err = f.svc.AddDependency(ctx, "p", "T2", "ghost", schedule.FinishToStart, 0)
	require.ErrorIs(t, err, schedule.ErrDanglingReference)

	after, err := f.store.Project(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision, "rejected edges must not write")
	assert.Empty(t, task(t, f, "T2").Dependencies)

	rejected := telemetry.Filter(f.telemetry(t), "p", telemetry.KindDependencyRejected)
	assert.Len(t, rejected, 2)
}

func TestService_AddDependencyReschedules(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	_, err := f.svc.AddTask(ctx, "p", schedule.Task{ID: "QA", DurationDays: 2, StartDate: jan(1)})
	require.NoError(t, err)

	id, res, err := f.svc.AddDependency(ctx, "p", "QA", "T3", schedule.FinishToStart, 1)
	require.NoError(t, err)
	assert.Equal(t, schedule.EdgeID("T3->QA"), id)
	assert.Equal(t, schedule.Affected{"QA"}, res.Affected)
	assert.Equal(t, jan(17), task(t, f, "QA").StartDate)

	res, err = f.svc.RemoveDependency(ctx, "p", "QA", "T3")
	require.NoError(t, err)
	assert.Equal(t, schedule.Affected{"QA"}, res.Affected)
	assert.Empty(t, task(t, f, "QA").Dependencies)
}

func TestService_PublishesEvents(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := f.bus.Subscribe(16)
	seed(t, f)

	var kinds []events.Kind
	for i := 0; i < 3; i++ {
		ev := <-sub.C()
		assert.Equal(t, "p", ev.ProjectID)
		assert.Positive(t, ev.Revision)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []events.Kind{events.TaskCreated, events.TaskCreated, events.TaskCreated}, kinds)
}

func TestService_OverrideAndDelete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	_, err := f.svc.SetManualOverride(ctx, "p", "T1", true)
	require.NoError(t, err)

	dur := 14
	_, err = f.svc.UpdateTask(ctx, "p", "T2", TaskPatch{DurationDays: &dur})
	require.NoError(t, err)
	t1 := task(t, f, "T1")
	assert.Equal(t, jan(12), t1.StartDate, "override pins the dates")
	assert.True(t, t1.HasConflict)

	conflicts, err := f.svc.Conflicts(ctx, "p")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "T1", conflicts[0].Task.ID)

	res, err := f.svc.SetManualOverride(ctx, "p", "T1", false)
	require.NoError(t, err)
	assert.Equal(t, schedule.Affected{"T1", "T3"}, res.Affected)
	assert.Equal(t, jan(17), task(t, f, "T1").StartDate)
	assert.False(t, task(t, f, "T1").HasConflict)

	res, err = f.svc.DeleteTask(ctx, "p", "T1")
	require.NoError(t, err)
	assert.Equal(t, []string{"T1"}, res.Deleted)
	assert.Contains(t, res.Affected, "T3")
	assert.Empty(t, task(t, f, "T3").Dependencies)

	_, err = f.svc.DeleteTask(ctx, "p", "T1")
	assert.ErrorIs(t, err, schedule.ErrTaskNotFound)
}

func TestService_Queries(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	cp, err := f.svc.CriticalPath(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, []string{"T2", "T1", "T3"}, cp.TaskIDs)
	assert.Equal(t, 13, cp.TotalDays)

	deps, err := f.svc.DependentTasks(ctx, "p", "T2")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "T1", deps[0].ID)

	streams, err := f.svc.Streams(ctx, "p")
	require.NoError(t, err)
	assert.Len(t, streams, 1)

	slack, err := f.svc.Slack(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"T1": 0, "T2": 0, "T3": 0}, slack)

	require.NoError(t, f.svc.SetMilestone(ctx, "p", schedule.Milestone{ID: "m", Name: "Ship", TaskIDs: []string{"T2", "T3"}}))
	view, err := f.svc.Milestone(ctx, "p", "m")
	require.NoError(t, err)
	assert.Equal(t, jan(1), view.Dates.Start)
	assert.Equal(t, jan(16), view.Dates.End)

	err = f.svc.SetMilestone(ctx, "p", schedule.Milestone{ID: "bad", TaskIDs: []string{"nope"}})
	assert.ErrorIs(t, err, schedule.ErrTaskNotFound)
}

func TestService_Rebaseline(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	req, err := f.svc.RequestRebaseline(ctx, "p", "T1", rebaseline.FieldEnd, jan(20), "vendor slip")
	require.NoError(t, err)
	assert.Equal(t, rebaseline.StatusPending, req.Status)

	decided, err := f.svc.DecideRebaseline(ctx, req.ID, true, "approved in review")
	require.NoError(t, err)
	assert.Equal(t, rebaseline.StatusApproved, decided.Status)
	assert.Equal(t, jan(20), task(t, f, "T1").BaselineEnd)
	assert.False(t, task(t, f, "T1").HasConflict)

	_, err = f.svc.DecideRebaseline(ctx, req.ID, false, "")
	assert.ErrorIs(t, err, schedule.ErrInfeasibleRebaseline)

	other, err := f.svc.RequestRebaseline(ctx, "p", "T3", rebaseline.FieldStart, jan(25), "")
	require.NoError(t, err)
	before := task(t, f, "T3")
	_, err = f.svc.DecideRebaseline(ctx, other.ID, false, "no")
	require.NoError(t, err)
	assert.Equal(t, before, task(t, f, "T3"), "rejection leaves the task alone")

	list, err := f.svc.ListRebaselines(ctx, "p", "")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = f.svc.RequestRebaseline(ctx, "p", "ghost", rebaseline.FieldEnd, jan(3), "")
	assert.ErrorIs(t, err, schedule.ErrTaskNotFound)
}

func TestService_RebaselineAcknowledgesConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	seed(t, f)
	ctx := context.Background()

	_, err := f.svc.SetManualOverride(ctx, "p", "T1", true)
	require.NoError(t, err)
	dur := 14
	_, err = f.svc.UpdateTask(ctx, "p", "T2", TaskPatch{DurationDays: &dur})
	require.NoError(t, err)
	require.True(t, task(t, f, "T1").HasConflict)

	req, err := f.svc.RequestRebaseline(ctx, "p", "T1", rebaseline.FieldStart, jan(17), "accept the slip")
	require.NoError(t, err)
	_, err = f.svc.DecideRebaseline(ctx, req.ID, true, "")
	require.NoError(t, err)

	t1 := task(t, f, "T1")
	assert.False(t, t1.HasConflict)
	assert.Equal(t, map[string]schedule.Date{"T2": jan(17)}, t1.Acknowledged)

	conflicts, err := f.svc.Conflicts(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	affected, err := newRecomputer(t, f).Recompute(ctx, "p")
	require.NoError(t, err)
	assert.NotContains(t, affected, "T1")
	assert.False(t, task(t, f, "T1").HasConflict, "recompute keeps the approved state")

	_, err = f.svc.RecomputeAll(ctx, "p")
	require.NoError(t, err)
	assert.False(t, task(t, f, "T1").HasConflict)

	t.Run("moved constraint flags again", func(t *testing.T) {
		dur := 15
		_, err := f.svc.UpdateTask(ctx, "p", "T2", TaskPatch{DurationDays: &dur})
		require.NoError(t, err)
		t1 := task(t, f, "T1")
		assert.True(t, t1.HasConflict)
		assert.Empty(t, t1.Acknowledged)

		conflicts, err := f.svc.Conflicts(ctx, "p")
		require.NoError(t, err)
		require.Len(t, conflicts, 1)
		assert.Equal(t, jan(18), conflicts[0].Conflicts[0].ExpectedDate)
	})
}

func TestService_ImportPlanKeepsStoredBaseline(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	plan := planfile.Plan{
		ProjectID:  "imp",
		Source:     "plan.yaml",
		Tasks:      []schedule.Task{{ID: "a", DurationDays: 4, StartDate: jan(1)}},
		Milestones: []schedule.Milestone{{ID: "m", TaskIDs: []string{"a"}}},
	}
	_, err := f.svc.ImportPlan(ctx, plan)
	require.NoError(t, err)

	plan.Tasks[0].BaselineStart, plan.Tasks[0].BaselineEnd = jan(20), jan(24)
	plan.Milestones = nil
	res, err := f.svc.ImportPlan(ctx, plan)
	require.NoError(t, err)
	require.Len(t, res.Requests, 2)

	snap, err := f.svc.Snapshot(ctx, "imp")
	require.NoError(t, err)
	a := snap.TaskMap()["a"]
	assert.Equal(t, jan(1), a.BaselineStart, "stored baseline wins")
	assert.Equal(t, jan(5), a.BaselineEnd)

	pending, err := f.svc.ListRebaselines(ctx, "imp", rebaseline.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	got := map[rebaseline.Field]schedule.Date{}
	for _, r := range pending {
		assert.Equal(t, "a", r.TaskID)
		assert.Equal(t, "plan file plan.yaml", r.Reason)
		got[r.Field] = r.ProposedDate
	}
	assert.Equal(t, map[rebaseline.Field]schedule.Date{rebaseline.FieldStart: jan(20), rebaseline.FieldEnd: jan(24)}, got)

	views, err := f.svc.Milestones(ctx, "imp")
	require.NoError(t, err)
	assert.Empty(t, views, "milestones missing from the plan are dropped")

	t.Run("reimport does not repeat requests", func(t *testing.T) {
		res, err := f.svc.ImportPlan(ctx, plan)
		require.NoError(t, err)
		assert.Empty(t, res.Requests)

		pending, err := f.svc.ListRebaselines(ctx, "imp", rebaseline.StatusPending)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
		assert.Len(t, telemetry.Filter(f.telemetry(t), "imp", telemetry.KindRebaselineRequested), 2)
	})
}

func TestService_ImportPlan(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	plan := planfile.Plan{
		ProjectID: "imp",
		Name:      "Imported",
		Tasks: []schedule.Task{
			{ID: "a", DurationDays: 4, StartDate: jan(1)},
			{ID: "b", DurationDays: 2, StartDate: jan(1), Dependencies: []schedule.DependencyEdge{dep("a", schedule.FinishToStart, 1)}},
			{ID: "c", DurationDays: 1, StartDate: jan(9)},
		},
		Milestones: []schedule.Milestone{{ID: "m", TaskIDs: []string{"a", "b"}}},
	}
	res, err := f.svc.ImportPlan(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, schedule.Affected{"b"}, res.Affected)

	snap, err := f.svc.Snapshot(ctx, "imp")
	require.NoError(t, err)
	require.Len(t, snap.Tasks, 3)
	assert.Equal(t, jan(6), snap.Tasks[1].StartDate)
	assert.Equal(t, jan(1), snap.Tasks[1].BaselineStart, "baseline is the planned date")

	plan.Tasks = plan.Tasks[:2]
	res, err = f.svc.ImportPlan(ctx, plan)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.Deleted)

	views, err := f.svc.Milestones(ctx, "imp")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, jan(8), views[0].Dates.End)

	cyclic := planfile.Plan{
		ProjectID: "imp",
		Tasks: []schedule.Task{
			{ID: "x", Dependencies: []schedule.DependencyEdge{dep("y", schedule.FinishToStart, 0)}},
			{ID: "y", Dependencies: []schedule.DependencyEdge{dep("x", schedule.FinishToStart, 0)}},
		},
	}
	_, err = f.svc.ImportPlan(ctx, cyclic)
	assert.ErrorIs(t, err, schedule.ErrCyclicDependency)
}

func TestService_ConcurrentMutationsSerialize(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.CreateProject(ctx, "p", "")
	require.NoError(t, err)

	const n = 8
	for i := 0; i < n; i++ {
		_, err := f.svc.AddTask(ctx, "p", schedule.Task{ID: fmt.Sprintf("t%d", i), DurationDays: 1, StartDate: jan(1)})
		require.NoError(t, err)
	}
	start, err := f.store.Project(ctx, "p")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dur := 2 + i
			_, err := f.svc.UpdateTask(ctx, "p", fmt.Sprintf("t%d", i), TaskPatch{DurationDays: &dur})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	end, err := f.store.Project(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, start.Revision+n, end.Revision)
}
