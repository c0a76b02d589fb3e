// Package planfile reads and writes project plans as TOML or YAML documents
// and watches a directory of them for edits.
//
// A plan lists tasks in creation order. Dependencies use the persisted
// encoding "predecessorId:type:lagDays", for example "design:FS:2".
package planfile

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/papapumpkin/gantry/internal/schedule"
)

// Format is a plan file syntax.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for files that are neither TOML nor YAML.
var ErrUnknownFormat = errors.New("unknown plan format")

// FormatOf infers the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
	}
}

// File is the on-disk document.
type File struct {
	Project    ProjectSpec     `toml:"project" yaml:"project"`
	Tasks      []TaskSpec      `toml:"tasks" yaml:"tasks"`
	Milestones []MilestoneSpec `toml:"milestones,omitempty" yaml:"milestones,omitempty"`
}

// ProjectSpec identifies the project a plan describes.
type ProjectSpec struct {
	ID   string `toml:"id" yaml:"id"`
	Name string `toml:"name,omitempty" yaml:"name,omitempty"`
}

// TaskSpec is one task entry. Dates are YYYY-MM-DD strings; end defaults to
// start plus duration.
type TaskSpec struct {
	ID            string   `toml:"id" yaml:"id"`
	Name          string   `toml:"name,omitempty" yaml:"name,omitempty"`
	Start         string   `toml:"start,omitempty" yaml:"start,omitempty"`
	End           string   `toml:"end,omitempty" yaml:"end,omitempty"`
	Duration      int      `toml:"duration" yaml:"duration"`
	BaselineStart string   `toml:"baseline_start,omitempty" yaml:"baseline_start,omitempty"`
	BaselineEnd   string   `toml:"baseline_end,omitempty" yaml:"baseline_end,omitempty"`
	DependsOn     []string `toml:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Override      bool     `toml:"override,omitempty" yaml:"override,omitempty"`
}

// MilestoneSpec groups tasks.
type MilestoneSpec struct {
	ID    string   `toml:"id" yaml:"id"`
	Name  string   `toml:"name,omitempty" yaml:"name,omitempty"`
	Tasks []string `toml:"tasks" yaml:"tasks"`
}

// Plan is a decoded plan ready for import.
type Plan struct {
	ProjectID  string
	Name       string
	Tasks      []schedule.Task
	Milestones []schedule.Milestone
	// Source is the file the plan was read from, if any.
	Source string
}

// Load reads and decodes the plan file at path.
func Load(path string) (Plan, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Plan{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan: %w", err)
	}
	plan, err := Parse(data, format)
	if err != nil {
		return Plan{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	plan.Source = path
	return plan, nil
}

// Parse decodes a plan document.
func Parse(data []byte, format Format) (Plan, error) {
	var f File
	switch format {
	case FormatTOML:
		if err := toml.Unmarshal(data, &f); err != nil {
			return Plan{}, fmt.Errorf("parsing TOML plan: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Plan{}, fmt.Errorf("parsing YAML plan: %w", err)
		}
	default:
		return Plan{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return f.Plan()
}

// Plan validates f and converts it to engine types.
func (f File) Plan() (Plan, error) {
	if f.Project.ID == "" {
		return Plan{}, fmt.Errorf("plan: project.id is required")
	}
	plan := Plan{ProjectID: f.Project.ID, Name: f.Project.Name}

	seen := make(map[string]bool, len(f.Tasks))
	for i, ts := range f.Tasks {
		t, err := ts.task(i)
		if err != nil {
			return Plan{}, err
		}
		if seen[t.ID] {
			return Plan{}, fmt.Errorf("plan: duplicate task id %q", t.ID)
		}
		seen[t.ID] = true
		plan.Tasks = append(plan.Tasks, t)
	}

	for _, ms := range f.Milestones {
		if ms.ID == "" {
			return Plan{}, fmt.Errorf("plan: milestone without id")
		}
		for _, id := range ms.Tasks {
			if !seen[id] {
				return Plan{}, fmt.Errorf("plan: milestone %s: unknown task %q", ms.ID, id)
			}
		}
		plan.Milestones = append(plan.Milestones, schedule.Milestone{
			ID:      ms.ID,
			Name:    ms.Name,
			TaskIDs: append([]string(nil), ms.Tasks...),
		})
	}
	return plan, nil
}

func (ts TaskSpec) task(seq int) (schedule.Task, error) {
	if ts.ID == "" {
		return schedule.Task{}, fmt.Errorf("plan: task #%d has no id", seq+1)
	}
	if ts.Duration < 0 {
		return schedule.Task{}, fmt.Errorf("plan: task %s: negative duration %d", ts.ID, ts.Duration)
	}

	t := schedule.Task{
		ID:             ts.ID,
		Name:           ts.Name,
		DurationDays:   ts.Duration,
		ManualOverride: ts.Override,
		Seq:            seq,
	}
	dates := []struct {
		name string
		raw  string
		dst  *schedule.Date
	}{
		{"start", ts.Start, &t.StartDate},
		{"end", ts.End, &t.EndDate},
		{"baseline_start", ts.BaselineStart, &t.BaselineStart},
		{"baseline_end", ts.BaselineEnd, &t.BaselineEnd},
	}
	for _, d := range dates {
		v, err := schedule.ParseDate(d.raw)
		if err != nil {
			return schedule.Task{}, fmt.Errorf("plan: task %s: %s: %w", ts.ID, d.name, err)
		}
		*d.dst = v
	}
	if t.EndDate.IsZero() {
		t.EndDate = t.StartDate.AddDays(t.DurationDays)
	}

	for _, raw := range ts.DependsOn {
		if err := schedule.ValidateEncoding(raw); err != nil {
			var verr *schedule.ValidationError
			if errors.As(err, &verr) {
				verr.TaskID = ts.ID
			}
			return schedule.Task{}, err
		}
	}
	t.Dependencies = schedule.ParseDependencies(ts.DependsOn)
	return t, nil
}

// FromProject builds a File from engine types, the inverse of Plan.
func FromProject(projectID, name string, tasks []schedule.Task, milestones []schedule.Milestone) File {
	f := File{Project: ProjectSpec{ID: projectID, Name: name}}
	for _, t := range tasks {
		f.Tasks = append(f.Tasks, TaskSpec{
			ID:            t.ID,
			Name:          t.Name,
			Start:         t.StartDate.String(),
			End:           t.EndDate.String(),
			Duration:      t.DurationDays,
			BaselineStart: t.BaselineStart.String(),
			BaselineEnd:   t.BaselineEnd.String(),
			DependsOn:     schedule.FormatDependencies(t.Dependencies),
			Override:      t.ManualOverride,
		})
	}
	for _, m := range milestones {
		f.Milestones = append(f.Milestones, MilestoneSpec{ID: m.ID, Name: m.Name, Tasks: m.TaskIDs})
	}
	return f
}

// Encode renders f in the given format.
func Encode(f File, format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		enc := toml.NewEncoder(&buf)
		enc.SetIndentTables(true)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("encoding TOML plan: %w", err)
		}
		return buf.Bytes(), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(f); err != nil {
			return nil, fmt.Errorf("encoding YAML plan: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding YAML plan: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
