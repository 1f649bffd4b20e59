package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
)

func TestStateRepository_CreateWorkflowIsIdempotent(t *testing.T) {
	repo := NewStateRepository()
	wf := workflow.NewWorkflow("align", "1.0.0")
	first, err := repo.CreateWorkflow(wf)
	require.NoError(t, err)

	second, err := repo.CreateWorkflow(workflow.NewWorkflow("align", "1.0.0"))
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestStateRepository_ListRunsFiltersByWorkflow(t *testing.T) {
	repo := NewStateRepository()
	require.NoError(t, repo.CreateRun(run.NewRun("r1", "align", "1.0.0", nil, "/tmp/r1")))
	require.NoError(t, repo.CreateRun(run.NewRun("r2", "other", "1.0.0", nil, "/tmp/r2")))

	runs, err := repo.ListRuns(run.ListFilter{WorkflowName: "align"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].RunID())
}

func TestStateRepository_DeleteRunRejectsNonTerminal(t *testing.T) {
	repo := NewStateRepository()
	r := run.NewRun("r1", "align", "1.0.0", nil, "/tmp/r1")
	r.SetStatus(run.StatusRunning)
	require.NoError(t, repo.CreateRun(r))

	err := repo.DeleteRun("r1")
	assert.Error(t, err)

	r.SetStatus(run.StatusCompleted)
	require.NoError(t, repo.DeleteRun("r1"))

	_, err = repo.GetRunWithSteps("r1")
	assert.Error(t, err)
}

func TestStateRepository_GetWorkflowByNameVersionNotFound(t *testing.T) {
	repo := NewStateRepository()
	_, err := repo.GetWorkflowByNameVersion("missing", "1.0.0")
	assert.Error(t, err)
}
