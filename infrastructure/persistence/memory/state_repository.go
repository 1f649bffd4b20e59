// Package memory implements run.Repository entirely in process memory, for
// tests and the CLI's --no-db mode. It supersedes the teacher's
// workflow-only in-memory repository (see DESIGN.md).
package memory

import (
	"sync"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
)

type workflowKey struct{ name, version string }

// stateRepository is a run.Repository backed by plain maps.
type stateRepository struct {
	mutex sync.RWMutex

	workflows map[workflowKey]*workflow.Workflow
	runs      map[string]*run.Run
	// steps holds every StepExecution ever recorded, since Run itself
	// already tracks its own history; this index exists only to make
	// AddStepExecution/UpdateStepExecution symmetric with the mysql backend.
	steps map[string][]*run.StepExecution
}

// NewStateRepository builds an empty in-memory repository.
func NewStateRepository() run.Repository {
	return &stateRepository{
		workflows: make(map[workflowKey]*workflow.Workflow),
		runs:      make(map[string]*run.Run),
		steps:     make(map[string][]*run.StepExecution),
	}
}

func (r *stateRepository) CreateWorkflow(wf *workflow.Workflow) (*workflow.Workflow, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	key := workflowKey{wf.Name(), wf.Version()}
	if existing, ok := r.workflows[key]; ok {
		return existing, nil
	}
	r.workflows[key] = wf
	return wf, nil
}

func (r *stateRepository) GetWorkflowByNameVersion(name, version string) (*workflow.Workflow, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	wf, ok := r.workflows[workflowKey{name, version}]
	if !ok {
		return nil, run.NewRepositoryError("workflow not found: %s/%s", name, version)
	}
	return wf, nil
}

func (r *stateRepository) ListWorkflows() ([]*workflow.Workflow, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*workflow.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		out = append(out, wf)
	}
	return out, nil
}

func (r *stateRepository) CreateRun(rn *run.Run) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.runs[rn.RunID()] = rn
	return nil
}

func (r *stateRepository) UpdateRunStatus(rn *run.Run) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.runs[rn.RunID()] = rn
	return nil
}

func (r *stateRepository) GetRunWithSteps(runID string) (*run.Run, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	rn, ok := r.runs[runID]
	if !ok {
		return nil, run.NewRepositoryError("run not found: %s", runID)
	}
	return rn, nil
}

func (r *stateRepository) ListRuns(filter run.ListFilter) ([]*run.Run, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	out := make([]*run.Run, 0, len(r.runs))
	for _, rn := range r.runs {
		if filter.WorkflowName != "" && rn.WorkflowName() != filter.WorkflowName {
			continue
		}
		out = append(out, rn)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *stateRepository) DeleteRun(runID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	rn, ok := r.runs[runID]
	if !ok {
		return run.NewRepositoryError("run not found: %s", runID)
	}
	if !rn.Status().IsTerminal() {
		return run.NewRepositoryError("cannot delete run %s: status %s is not terminal", runID, rn.Status())
	}
	delete(r.runs, runID)
	delete(r.steps, runID)
	return nil
}

// AddStepExecution and UpdateStepExecution are no-ops beyond bookkeeping:
// the scheduler mutates the same *run.StepExecution instance held by the
// in-memory Run, so there is nothing to write back. They exist to satisfy
// run.Repository and to exercise the same retry-on-failure path in
// domain/runner as the mysql backend during tests.
func (r *stateRepository) AddStepExecution(se *run.StepExecution) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.steps[se.RunID()] = append(r.steps[se.RunID()], se)
	return nil
}

func (r *stateRepository) UpdateStepExecution(se *run.StepExecution) error {
	return nil
}
