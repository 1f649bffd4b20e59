// Package workflow holds the workflow definition aggregate: parsing,
// validation, variable substitution and duration parsing. It has no
// knowledge of runs, containers or persistence.
package workflow

import (
	"sort"
	"sync"
)

// Resources is a step's declared resource request.
type Resources struct {
	CPU       int
	Memory    string
	TimeLimit string // raw duration string, empty means "use engine default"
}

// TimeLimitSeconds resolves the resolved time budget for a step, following
// §4.4 step 2: the step's own time_limit if present, else defaultSeconds.
// A defaultSeconds of 0 together with an empty TimeLimit disables the timer.
func (r Resources) TimeLimitSeconds(defaultSeconds int64) (int64, error) {
	if r.TimeLimit == "" {
		return defaultSeconds, nil
	}
	return ParseDuration(r.TimeLimit)
}

// StepDefinition is one node of the workflow DAG.
type StepDefinition struct {
	name      string
	container string
	command   string
	resources Resources
	after     []string
}

// NewStepDefinition constructs a step definition.
func NewStepDefinition(name, container, command string, resources Resources, after []string) *StepDefinition {
	return &StepDefinition{
		name:      name,
		container: container,
		command:   command,
		resources: resources,
		after:     after,
	}
}

func (s *StepDefinition) Name() string          { return s.name }
func (s *StepDefinition) Container() string     { return s.container }
func (s *StepDefinition) Command() string       { return s.command }
func (s *StepDefinition) Resources() Resources  { return s.resources }
func (s *StepDefinition) After() []string       { return s.after }

// Metadata is descriptive information carried alongside a workflow,
// restored from the source's core.models.Metadata (§ SPEC_FULL.md "Supplemented features").
type Metadata struct {
	Author  string
	Tags    []string
	License string
}

// Workflow is the aggregate root identified by (name, version). It is
// immutable once Validate succeeds and it has been handed to the
// repository: a content change requires constructing a new Workflow with a
// new version.
type Workflow struct {
	name        string
	version     string
	description string
	config      map[string]Value
	inputs      map[string]string
	metadata    Metadata

	steps      map[string]*StepDefinition
	stepOrder  []string // declaration order, authoritative for scheduler tie-break

	mutex sync.RWMutex
}

// NewWorkflow creates an empty workflow shell to be populated by the loader.
func NewWorkflow(name, version string) *Workflow {
	return &Workflow{
		name:    name,
		version: version,
		config:  make(map[string]Value),
		inputs:  make(map[string]string),
		steps:   make(map[string]*StepDefinition),
	}
}

func (w *Workflow) Name() string             { return w.name }
func (w *Workflow) Version() string          { return w.version }
func (w *Workflow) Description() string      { return w.description }
func (w *Workflow) Config() map[string]Value { return w.config }
func (w *Workflow) Inputs() map[string]string { return w.inputs }
func (w *Workflow) Metadata() Metadata       { return w.metadata }

func (w *Workflow) SetDescription(d string)      { w.description = d }
func (w *Workflow) SetConfig(c map[string]Value) { w.config = c }
func (w *Workflow) SetInputs(i map[string]string) { w.inputs = i }
func (w *Workflow) SetMetadata(m Metadata)       { w.metadata = m }

// AddStep appends a step definition, recording declaration order. Duplicate
// names are rejected.
func (w *Workflow) AddStep(step *StepDefinition) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if _, exists := w.steps[step.Name()]; exists {
		return NewWorkflowErrorf("duplicate step name: %s", step.Name())
	}
	w.steps[step.Name()] = step
	w.stepOrder = append(w.stepOrder, step.Name())
	return nil
}

// Step looks up a step definition by name.
func (w *Workflow) Step(name string) (*StepDefinition, bool) {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	s, ok := w.steps[name]
	return s, ok
}

// Steps returns the step-name -> definition map.
func (w *Workflow) Steps() map[string]*StepDefinition {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	return w.steps
}

// StepOrder returns step names in declaration order, the tie-break the
// scheduler uses among simultaneously-ready steps (§4.3).
func (w *Workflow) StepOrder() []string {
	w.mutex.RLock()
	defer w.mutex.RUnlock()
	out := make([]string, len(w.stepOrder))
	copy(out, w.stepOrder)
	return out
}

// Validate checks schema well-formedness: every `after` reference exists
// and the induced graph is acyclic. Returns InvalidWorkflow otherwise.
func (w *Workflow) Validate() error {
	w.mutex.RLock()
	defer w.mutex.RUnlock()

	if w.name == "" {
		return NewWorkflowError("workflow name is required")
	}
	if w.version == "" {
		return NewWorkflowError("workflow version is required")
	}
	if len(w.steps) == 0 {
		return NewWorkflowError("workflow has no steps")
	}

	for _, step := range w.steps {
		if step.Container() == "" {
			return NewWorkflowErrorf("step %s: container is required", step.Name())
		}
		if step.Command() == "" {
			return NewWorkflowErrorf("step %s: command is required", step.Name())
		}
		for _, dep := range step.After() {
			if _, exists := w.steps[dep]; !exists {
				return NewWorkflowErrorf("step %s: unknown dependency %s", step.Name(), dep)
			}
		}
		if step.Resources().TimeLimit != "" {
			if _, err := ParseDuration(step.Resources().TimeLimit); err != nil {
				return NewWorkflowErrorf("step %s: %v", step.Name(), err)
			}
		}
	}

	if cycle := w.findCycle(); cycle != nil {
		return NewWorkflowErrorf("cyclic dependency detected: %v", cycle)
	}

	return nil
}

// findCycle runs a DFS with a recursion stack, grounded on the teacher's
// hasCyclicDependency, extended to report the offending path.
func (w *Workflow) findCycle() []string {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	// Deterministic iteration order for reproducible error messages.
	names := make([]string, 0, len(w.steps))
	for name := range w.steps {
		names = append(names, name)
	}
	sort.Strings(names)

	var path []string
	var visit func(name string) []string
	visit = func(name string) []string {
		visited[name] = true
		recStack[name] = true
		path = append(path, name)

		step := w.steps[name]
		for _, dep := range step.After() {
			if !visited[dep] {
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			} else if recStack[dep] {
				return append(append([]string{}, path...), dep)
			}
		}

		recStack[name] = false
		path = path[:len(path)-1]
		return nil
	}

	for _, name := range names {
		if !visited[name] {
			if cyc := visit(name); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}
