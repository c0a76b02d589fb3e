package schedule

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolveDates_SingleEdge(t *testing.T) {
	t.Parallel()
	// Predecessor runs Jan 5 to Jan 10.
	pred := mk("p", jan(5), 5)

	tests := []struct {
		name      string
		edge      DependencyEdge
		wantStart Date
		wantEnd   Date
	}{
		{"FS lag", edge("p", FinishToStart, 2), jan(12), jan(15)},
		{"FS lead", edge("p", FinishToStart, -2), jan(8), jan(11)},
		{"FS zero", edge("p", FinishToStart, 0), jan(10), jan(13)},
		{"SS lag", edge("p", StartToStart, 1), jan(6), jan(9)},
		{"SS lead", edge("p", StartToStart, -1), jan(4), jan(7)},
		{"FF lag", edge("p", FinishToFinish, 2), jan(9), jan(12)},
		{"FF lead", edge("p", FinishToFinish, -2), jan(5), jan(8)},
		{"SF lag", edge("p", StartToFinish, 3), jan(5), jan(8)},
		{"SF lead", edge("p", StartToFinish, -1), jan(1), jan(4)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			task := mk("t", Date{}, 3)
			res := ResolveDates(task, []Predecessor{{Edge: tt.edge, Task: pred}})
			if !res.HasSuggestion {
				t.Fatal("expected a suggestion")
			}
			if res.SuggestedStart != tt.wantStart || res.SuggestedEnd != tt.wantEnd {
				t.Errorf("suggested %s..%s, want %s..%s",
					res.SuggestedStart, res.SuggestedEnd, tt.wantStart, tt.wantEnd)
			}
			if res.HasConflict {
				t.Error("unscheduled task must not be flagged")
			}
		})
	}
}

func TestResolveDates_NoPredecessors(t *testing.T) {
	t.Parallel()
	res := ResolveDates(mk("t", jan(1), 2), nil)
	if res.HasSuggestion || res.HasConflict {
		t.Errorf("Resolution = %+v, want empty", res)
	}
}

func TestResolveDates_LatestStartWins(t *testing.T) {
	t.Parallel()
	a := mk("a", jan(1), 4) // ends Jan 5
	b := mk("b", jan(1), 8) // ends Jan 9
	task := mk("t", jan(20), 2, fs("a", 0), fs("b", 0))

	res := ResolveDates(task, []Predecessor{
		{Edge: fs("a", 0), Task: a},
		{Edge: fs("b", 0), Task: b},
	})
	if res.SuggestedStart != jan(9) {
		t.Errorf("SuggestedStart = %s, want 2025-01-09", res.SuggestedStart)
	}
	if res.BindingEdge != NewEdgeID("t", "b") {
		t.Errorf("BindingEdge = %s, want b->t", res.BindingEdge)
	}
}

func TestResolveDates_TieGoesToFirstEdge(t *testing.T) {
	t.Parallel()
	a := mk("a", jan(1), 4) // ends Jan 5
	b := mk("b", jan(3), 2) // ends Jan 5
	task := mk("t", jan(20), 2)

	res := ResolveDates(task, []Predecessor{
		{Edge: fs("b", 0), Task: b},
		{Edge: fs("a", 0), Task: a},
	})
	if res.BindingEdge != NewEdgeID("t", "b") {
		t.Errorf("BindingEdge = %s, want b->t (first declared)", res.BindingEdge)
	}
}

func TestResolveDates_MixedTypesSatisfyAllEdges(t *testing.T) {
	t.Parallel()
	a := mk("a", jan(1), 2)  // Jan 1..3
	b := mk("b", jan(1), 10) // Jan 1..11
	task := mk("t", Date{}, 3)
	// Required starts: Jan 4 (FS), Jan 8 (FF end Jan 11), Jan 3 (SS).
	preds := []Predecessor{
		{Edge: fs("a", 1), Task: a},
		{Edge: edge("b", FinishToFinish, 0), Task: b},
		{Edge: edge("a", StartToStart, 2), Task: a},
	}
	res := ResolveDates(task, preds)
	if res.SuggestedStart != jan(8) || res.SuggestedEnd != jan(11) {
		t.Fatalf("suggested %s..%s, want 2025-01-08..2025-01-11", res.SuggestedStart, res.SuggestedEnd)
	}

	task.StartDate, task.EndDate = res.SuggestedStart, res.SuggestedEnd
	if again := ResolveDates(task, preds); again.HasConflict {
		t.Errorf("resolved dates still conflict: %+v", again.Conflicts)
	}
}

func TestResolveDates_Conflicts(t *testing.T) {
	t.Parallel()
	p := mk("p", jan(1), 9) // Jan 1..10
	task := mk("t", jan(11), 2)

	// FS needs start Jan 12, FF is satisfied, SF needs end Jan 21.
	res := ResolveDates(task, []Predecessor{
		{Edge: fs("p", 2), Task: p},
		{Edge: edge("p", FinishToFinish, 0), Task: p},
		{Edge: edge("p", StartToFinish, 20), Task: p},
	})
	want := []Conflict{
		{EdgeID: "p->t", Type: FinishToStart, ExpectedDate: jan(12), ActualDate: jan(11)},
		{EdgeID: "p->t", Type: StartToFinish, ExpectedDate: jan(21), ActualDate: jan(13)},
	}
	if !res.HasConflict {
		t.Fatal("expected conflict")
	}
	if diff := cmp.Diff(want, res.Conflicts); diff != "" {
		t.Errorf("Conflicts (-want +got):\n%s", diff)
	}
}

func TestResolveDates_UnscheduledPredecessorIgnored(t *testing.T) {
	t.Parallel()
	res := ResolveDates(mk("t", jan(1), 1), []Predecessor{{Edge: fs("p", 0), Task: Task{ID: "p"}}})
	if res.HasSuggestion || res.HasConflict {
		t.Errorf("Resolution = %+v, want empty", res)
	}
}
