package run

import "github.com/bioinfoflow/bioinfoflow/domain/workflow"

// ListFilter narrows ListRuns, mirroring the CLI's `list` flags (§6).
type ListFilter struct {
	WorkflowName string
	Limit        int
}

// Repository is the state repository of §4.7: workflows, runs and step
// executions, persisted with idempotent upserts keyed by natural
// identifiers. Implementations: infrastructure/persistence/mysql (durable)
// and infrastructure/persistence/memory (tests, --no-db CLI mode).
type Repository interface {
	// CreateWorkflow registers wf. A workflow with the same (name, version)
	// is already-registered; the existing row is returned instead of
	// erroring (§4.7).
	CreateWorkflow(wf *workflow.Workflow) (*workflow.Workflow, error)
	GetWorkflowByNameVersion(name, version string) (*workflow.Workflow, error)
	ListWorkflows() ([]*workflow.Workflow, error)

	CreateRun(r *Run) error
	UpdateRunStatus(r *Run) error
	GetRunWithSteps(runID string) (*Run, error)
	ListRuns(filter ListFilter) ([]*Run, error)
	// DeleteRun removes a run and its step executions. Callers must check
	// Status().IsTerminal() first; a non-terminal run returns RepositoryError.
	DeleteRun(runID string) error

	AddStepExecution(se *StepExecution) error
	UpdateStepExecution(se *StepExecution) error
}
