// Package workflows loads and validates the workflow templates that
// describe how an incoming document moves through the annotation phases.
// Templates are authored as TOML files, one workflow per file.
package workflows

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/crowdocs/crowdocs/internal/workunits"
)

var (
	ErrUnknownWorkflow = errors.New("unknown workflow")
	ErrInvalidTemplate = errors.New("invalid workflow template")
)

// Template is the immutable definition of a workflow. Work units copy
// its task groups at registration time so a template edit never changes
// units already in flight.
type Template struct {
	Name         string                `toml:"name"`
	OutputPrefix string                `toml:"output_prefix"`
	TaskGroups   []workunits.TaskGroup `toml:"task_groups"`
}

func (t *Template) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTemplate)
	}

	names := make(map[string]bool)
	jobs := make(map[string]bool)
	phases := make(map[workunits.Phase]bool)

	for _, g := range t.TaskGroups {
		if !g.Phase.Valid() {
			return fmt.Errorf("%w: workflow %q has unknown phase %q", ErrInvalidTemplate, t.Name, g.Phase)
		}
		if phases[g.Phase] {
			return fmt.Errorf("%w: workflow %q repeats phase %q", ErrInvalidTemplate, t.Name, g.Phase)
		}
		phases[g.Phase] = true

		for _, task := range g.Tasks {
			if task.JobID == "" {
				return fmt.Errorf("%w: workflow %q task %q has no job id", ErrInvalidTemplate, t.Name, task.Name)
			}
			if task.Name == "" {
				return fmt.Errorf("%w: workflow %q has a task without a name", ErrInvalidTemplate, t.Name)
			}
			if names[task.Name] {
				return fmt.Errorf("%w: workflow %q repeats task name %q", ErrInvalidTemplate, t.Name, task.Name)
			}
			names[task.Name] = true
			jobs[task.JobID] = true
		}
	}

	// Predecessors name job ids: completion is tracked per job in the
	// evaluation context, not per task name.
	for _, g := range t.TaskGroups {
		for _, task := range g.Tasks {
			for _, p := range task.Predecessors {
				if !jobs[p] {
					return fmt.Errorf(
						"%w: workflow %q task %q names unknown predecessor job %q",
						ErrInvalidTemplate, t.Name, task.Name, p,
					)
				}
			}
		}
	}

	return nil
}

// Group returns the template's task group for the given phase, if any.
func (t *Template) Group(phase workunits.Phase) (workunits.TaskGroup, bool) {
	for _, g := range t.TaskGroups {
		if g.Phase == phase {
			return g, true
		}
	}
	return workunits.TaskGroup{}, false
}

// Registry holds the loaded workflow templates keyed by name.
type Registry struct {
	templates map[string]*Template
}

func NewRegistry(templates ...*Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template)}
	for _, t := range templates {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadDir reads every .toml file in dir as a workflow template.
func LoadDir(dir string) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template)}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".toml") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read workflow template %s: %w", path, err)
		}

		var t Template
		if err := toml.Unmarshal(data, &t); err != nil {
			return fmt.Errorf("parse workflow template %s: %w", path, err)
		}

		return r.add(&t)
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

func (r *Registry) add(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if _, ok := r.templates[t.Name]; ok {
		return fmt.Errorf("%w: duplicate workflow %q", ErrInvalidTemplate, t.Name)
	}
	r.templates[t.Name] = t
	return nil
}

func (r *Registry) Find(name string) (*Template, error) {
	t, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}
	return t, nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}
