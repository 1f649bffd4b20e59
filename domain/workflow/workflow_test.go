package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflow_AddStep_RejectsDuplicateName(t *testing.T) {
	wf := NewWorkflow("dup", "1.0.0")
	require.NoError(t, wf.AddStep(NewStepDefinition("a", "busybox", "echo hi", Resources{}, nil)))
	err := wf.AddStep(NewStepDefinition("a", "busybox", "echo hi", Resources{}, nil))
	assert.Error(t, err)
}

func TestWorkflow_Validate_RequiresContainerAndCommand(t *testing.T) {
	wf := NewWorkflow("bad", "1.0.0")
	require.NoError(t, wf.AddStep(NewStepDefinition("a", "", "echo hi", Resources{}, nil)))
	assert.Error(t, wf.Validate())
}

func TestWorkflow_Validate_RejectsBadTimeLimit(t *testing.T) {
	wf := NewWorkflow("bad-duration", "1.0.0")
	require.NoError(t, wf.AddStep(NewStepDefinition("a", "busybox", "echo hi", Resources{TimeLimit: "banana"}, nil)))
	assert.Error(t, wf.Validate())
}

func TestResources_TimeLimitSeconds_FallsBackToDefault(t *testing.T) {
	r := Resources{}
	got, err := r.TimeLimitSeconds(3600)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), got)
}

func TestResources_TimeLimitSeconds_UsesOwnValue(t *testing.T) {
	r := Resources{TimeLimit: "10s"}
	got, err := r.TimeLimitSeconds(3600)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got)
}
