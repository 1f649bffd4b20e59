package run

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun_RecomputeStatus_CompletedWhenAllCompletedOrSkipped(t *testing.T) {
	r := NewRun("20260101_000000_deadbeef", "wf", "1.0.0", nil, "/tmp/x")
	a := NewStepExecution(r.RunID(), "a", 1)
	a.Finish(time.Now(), StatusCompleted, 0, "", nil)
	b := NewStepExecution(r.RunID(), "b", 1)
	b.Skip(time.Now(), "dependency not satisfied")
	r.PutStepExecution(a)
	r.PutStepExecution(b)

	assert.Equal(t, StatusCompleted, r.RecomputeStatus())
}

func TestRun_RecomputeStatus_FailedWhenNoneActive(t *testing.T) {
	r := NewRun("20260101_000000_deadbeef", "wf", "1.0.0", nil, "/tmp/x")
	a := NewStepExecution(r.RunID(), "a", 1)
	a.Finish(time.Now(), StatusFailed, 1, "exit 1", nil)
	b := NewStepExecution(r.RunID(), "b", 1)
	b.Skip(time.Now(), "dependency a failed")
	r.PutStepExecution(a)
	r.PutStepExecution(b)

	assert.Equal(t, StatusFailed, r.RecomputeStatus())
}

func TestRun_RecomputeStatus_RunningWhileStepsPending(t *testing.T) {
	r := NewRun("20260101_000000_deadbeef", "wf", "1.0.0", nil, "/tmp/x")
	a := NewStepExecution(r.RunID(), "a", 1)
	a.Start(time.Now())
	r.PutStepExecution(a)

	assert.Equal(t, StatusRunning, r.RecomputeStatus())
}

func TestRun_HistoryKeepsSupersededAttempts(t *testing.T) {
	r := NewRun("20260101_000000_deadbeef", "wf", "1.0.0", nil, "/tmp/x")
	first := NewStepExecution(r.RunID(), "a", 1)
	first.Finish(time.Now(), StatusFailed, 1, "boom", nil)
	r.PutStepExecution(first)

	second := NewStepExecution(r.RunID(), "a", 2)
	second.Finish(time.Now(), StatusCompleted, 0, "", nil)
	r.PutStepExecution(second)

	assert.Len(t, r.History(), 2)
	current, ok := r.StepExecution("a")
	assert.True(t, ok)
	assert.Equal(t, 2, current.Attempt())
}

func TestGenerateID_MatchesShape(t *testing.T) {
	id := GenerateID(time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC))
	assert.Regexp(t, `^\d{8}_\d{6}_[0-9a-f]{8}$`, id)
}
