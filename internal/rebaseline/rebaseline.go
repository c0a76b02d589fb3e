// Package rebaseline implements the approval workflow for moving a task's
// baseline dates. A request starts pending and is decided exactly once.
package rebaseline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/gantry/internal/schedule"
)

// Status is the lifecycle state of a request.
type Status string

// Request statuses.
const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Field selects which baseline bound a request moves.
type Field string

// Baseline fields.
const (
	FieldStart Field = "start"
	FieldEnd   Field = "end"
)

// ParseField parses "start" or "end". An empty string means FieldEnd.
func ParseField(s string) (Field, error) {
	switch Field(s) {
	case "", FieldEnd:
		return FieldEnd, nil
	case FieldStart:
		return FieldStart, nil
	default:
		return "", fmt.Errorf("unknown baseline field %q (want start or end)", s)
	}
}

// Request asks to move one baseline bound of a task.
type Request struct {
	ID           string
	ProjectID    string
	TaskID       string
	Field        Field
	OriginalDate schedule.Date
	ProposedDate schedule.Date
	Reason       string
	Status       Status
	CreatedAt    time.Time
	DecidedAt    time.Time
	DecisionNote string
}

// New opens a pending request against task. OriginalDate is captured from
// the task's current baseline.
func New(projectID string, task schedule.Task, field Field, proposed schedule.Date, reason string, now time.Time) (Request, error) {
	if proposed.IsZero() {
		return Request{}, infeasible(task.ID, "proposed date is required")
	}
	original := task.BaselineEnd
	if field == FieldStart {
		original = task.BaselineStart
	} else if field != FieldEnd {
		return Request{}, infeasible(task.ID, fmt.Sprintf("unknown baseline field %q", field))
	}
	return Request{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		TaskID:       task.ID,
		Field:        field,
		OriginalDate: original,
		ProposedDate: proposed,
		Reason:       reason,
		Status:       StatusPending,
		CreatedAt:    now.UTC(),
	}, nil
}

// Decide approves or rejects r. task is the target task as currently stored,
// or nil if it no longer exists. On approval the chosen baseline bound is
// set to ProposedDate and the task's conflict flag is cleared; if the new
// bound would cross the other one, the other bound moves with it so the
// baseline keeps its length. Rejection leaves the task untouched.
//
// Deciding a request that is not pending, or whose task is gone, fails with
// an InfeasibleRebaseline *schedule.ValidationError and changes nothing.
func (r *Request) Decide(task *schedule.Task, approve bool, note string, now time.Time) error {
	if r.Status != StatusPending {
		return infeasible(r.TaskID, fmt.Sprintf("request %s is already %s", r.ID, r.Status))
	}
	if task == nil || task.ID != r.TaskID {
		return infeasible(r.TaskID, "task no longer exists")
	}

	if approve {
		applyBaseline(task, r.Field, r.ProposedDate)
		task.HasConflict = false
		r.Status = StatusApproved
	} else {
		r.Status = StatusRejected
	}
	r.DecidedAt = now.UTC()
	r.DecisionNote = note
	return nil
}

// Approve is Decide with approve set.
func (r *Request) Approve(task *schedule.Task, note string, now time.Time) error {
	return r.Decide(task, true, note, now)
}

// Reject is Decide with approve unset.
func (r *Request) Reject(task *schedule.Task, note string, now time.Time) error {
	return r.Decide(task, false, note, now)
}

func applyBaseline(task *schedule.Task, field Field, date schedule.Date) {
	span := 0
	if !task.BaselineStart.IsZero() && !task.BaselineEnd.IsZero() {
		span = task.BaselineStart.DaysUntil(task.BaselineEnd)
	}
	switch field {
	case FieldStart:
		task.BaselineStart = date
		if task.BaselineEnd.IsZero() || task.BaselineEnd.Before(date) {
			task.BaselineEnd = date.AddDays(span)
		}
	default:
		task.BaselineEnd = date
		if task.BaselineStart.IsZero() || date.Before(task.BaselineStart) {
			task.BaselineStart = date.AddDays(-span)
		}
	}
}

func infeasible(taskID, reason string) error {
	return &schedule.ValidationError{
		Kind:   schedule.KindInfeasibleRebaseline,
		TaskID: taskID,
		Reason: reason,
	}
}
