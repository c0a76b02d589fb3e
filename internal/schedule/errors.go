package schedule

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by ValidationError.Unwrap.
var (
	ErrMalformedEncoding    = errors.New("malformed dependency encoding")
	ErrDanglingReference    = errors.New("dangling dependency reference")
	ErrCyclicDependency     = errors.New("cyclic dependency")
	ErrInfeasibleRebaseline = errors.New("infeasible rebaseline")
)

// ErrTaskNotFound is returned when an operation names a task that is not
// part of the project snapshot.
var ErrTaskNotFound = errors.New("task not found")

// ErrDuplicateDependency is returned when the same predecessor is added twice.
var ErrDuplicateDependency = errors.New("dependency already exists")

// ErrDependencyNotFound is returned when removing an edge that does not exist.
var ErrDependencyNotFound = errors.New("dependency not found")

// ErrKind classifies a ValidationError.
type ErrKind string

// Validation error kinds.
const (
	KindMalformedEncoding    ErrKind = "malformed_encoding"
	KindDanglingReference    ErrKind = "dangling_reference"
	KindCyclicDependency     ErrKind = "cyclic_dependency"
	KindInfeasibleRebaseline ErrKind = "infeasible_rebaseline"
)

// ValidationError is a user-facing rejection. Callers recover from it by
// showing Reason; it never aborts unrelated work.
type ValidationError struct {
	Kind          ErrKind
	TaskID        string
	PredecessorID string
	Reason        string
}

func (e *ValidationError) Error() string {
	switch {
	case e.TaskID != "" && e.PredecessorID != "":
		return fmt.Sprintf("%s: %s (task %s, predecessor %s)", e.sentinel(), e.Reason, e.TaskID, e.PredecessorID)
	case e.TaskID != "":
		return fmt.Sprintf("%s: %s (task %s)", e.sentinel(), e.Reason, e.TaskID)
	default:
		return fmt.Sprintf("%s: %s", e.sentinel(), e.Reason)
	}
}

// Unwrap returns the sentinel matching Kind so errors.Is works.
func (e *ValidationError) Unwrap() error {
	return e.sentinel()
}

func (e *ValidationError) sentinel() error {
	switch e.Kind {
	case KindMalformedEncoding:
		return ErrMalformedEncoding
	case KindDanglingReference:
		return ErrDanglingReference
	case KindCyclicDependency:
		return ErrCyclicDependency
	case KindInfeasibleRebaseline:
		return ErrInfeasibleRebaseline
	default:
		return errors.New(string(e.Kind))
	}
}
