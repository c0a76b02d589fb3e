// Package telemetry records scheduling decisions as a JSONL audit stream.
// Every committed mutation, cascade, rejected dependency, recompute and
// rebaseline decision is written as one JSON object per line so a project's
// schedule history can be replayed and inspected after the fact.
package telemetry

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindTaskCreated         = "task_created"
	KindTaskUpdated         = "task_updated"
	KindTaskDeleted         = "task_deleted"
	KindDependencyAdded     = "dependency_added"
	KindDependencyRejected  = "dependency_rejected"
	KindDependencyRemoved   = "dependency_removed"
	KindCascade             = "cascade"
	KindConflictDetected    = "conflict_detected"
	KindRecompute           = "recompute"
	KindRecomputeAbandoned  = "recompute_abandoned"
	KindRebaselineRequested = "rebaseline_requested"
	KindRebaselineDecided   = "rebaseline_decided"
	KindPlanImported        = "plan_imported"
)

// Event is a single telemetry record: a timestamp, a kind tag, the project
// and task it concerns, and free-form structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	ProjectID string    `json:"project,omitempty"`
	TaskID    string    `json:"task,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
	now  func() time.Time
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
		now:  time.Now,
	}, nil
}

// Emit writes a single event. A zero Timestamp is set to the current time.
// Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Record is Emit for the common case, stamped with the current time.
func (e *Emitter) Record(kind, projectID, taskID string, data any) error {
	return e.Emit(Event{Kind: kind, ProjectID: projectID, TaskID: taskID, Data: data})
}

// Close closes the underlying file. Calling Close on a nil Emitter is a
// no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}

// ReadEvents decodes a JSONL stream. Blank lines are skipped; a line that
// is not valid JSON is an error naming its line number.
func ReadEvents(r io.Reader) ([]Event, error) {
	var events []Event
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return events, fmt.Errorf("telemetry: line %d: %w", line, err)
		}
		events = append(events, evt)
	}
	if err := sc.Err(); err != nil {
		return events, fmt.Errorf("telemetry: read: %w", err)
	}
	return events, nil
}

// Filter returns the events matching project (any when empty) and kinds
// (any when none given).
func Filter(events []Event, project string, kinds ...string) []Event {
	var out []Event
	for _, evt := range events {
		if project != "" && evt.ProjectID != project {
			continue
		}
		if len(kinds) > 0 && !contains(kinds, evt.Kind) {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
