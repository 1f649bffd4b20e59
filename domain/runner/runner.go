// Package runner implements the step runner of §4.4: variable
// substitution, container invocation, the wait-for-either time-limit
// primitive of §5, and best-effort output discovery.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bioinfoflow/bioinfoflow/domain/logger"
	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/container"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/eventbus"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/metrics"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/rundir"
)

// Runner owns exactly one run's worth of step executions. It implements
// scheduler.Execute.
type Runner struct {
	Driver           container.Driver
	Manager          *rundir.Manager
	Repository       run.Repository
	DefaultTimeLimit int64 // seconds
	Grace            int64 // seconds
	Overrides        map[string]Override

	// Cancel aborts the whole run's context when a repository write fails
	// twice in a row (§7: RepositoryError is "logged, retried once; second
	// failure aborts the run as ERROR"). The scheduler observes this
	// through ctx.Done() like any other cancellation.
	Cancel context.CancelFunc

	// Bus receives step lifecycle events. Nil is valid; publishing is
	// skipped so tests can construct a Runner without one.
	Bus eventbus.Bus

	// Logger records operational log entries scoped to the run/step. Nil
	// is valid; logging is skipped so tests can construct a Runner
	// without one.
	Logger logger.Service

	abortReason atomic.Value
}

// Override replaces a step's command and/or resources for one resume
// attempt without mutating the workflow definition (§4.3 Resume).
type Override struct {
	Command   string
	Resources *workflow.Resources
}

// AbortReason reports whether a repository failure forced this run to
// abort, and why.
func (rn *Runner) AbortReason() (string, bool) {
	v := rn.abortReason.Load()
	if v == nil {
		return "", false
	}
	return v.(string), true
}

// Execute runs one StepExecution to completion. It matches scheduler.Execute.
func (rn *Runner) Execute(ctx context.Context, r *run.Run, layout rundir.Layout, wf *workflow.Workflow) func(context.Context, *workflow.StepDefinition, *run.StepExecution) {
	return func(ctx context.Context, def *workflow.StepDefinition, se *run.StepExecution) {
		rn.runStep(ctx, wf, r, layout, def, se)
	}
}

func (rn *Runner) effective(def *workflow.StepDefinition) (command string, resources workflow.Resources) {
	command = def.Command()
	resources = def.Resources()
	if ov, ok := rn.Overrides[def.Name()]; ok {
		if ov.Command != "" {
			command = ov.Command
		}
		if ov.Resources != nil {
			resources = *ov.Resources
		}
	}
	return command, resources
}

func (rn *Runner) runStep(ctx context.Context, wf *workflow.Workflow, r *run.Run, layout rundir.Layout, def *workflow.StepDefinition, se *run.StepExecution) {
	command, resources := rn.effective(def)

	bindings := workflow.Bindings(
		wf.Config(),
		stringsToValues(r.Inputs()),
		map[string]workflow.Value{
			"cpu":        workflow.Int(int64(resources.CPU)),
			"memory":     workflow.Str(resources.Memory),
			"time_limit": workflow.Str(resources.TimeLimit),
		},
		completedStepOutputs(r),
		layout.Root,
	)
	resolvedCommand := workflow.Substitute(command, bindings)

	limitSeconds, err := resources.TimeLimitSeconds(rn.DefaultTimeLimit)
	if err != nil {
		rn.finish(ctx, wf, r, se, run.StatusError, -1, err.Error(), nil)
		return
	}

	se.Start(time.Now())
	rn.persist(func() error { return rn.Repository.AddStepExecution(se) })
	se.SetLogFile(layout.LogPath(def.Name()))
	rn.publish(ctx, wf, r, eventbus.EventStepStarted, se, nil)

	if err := rn.Driver.Pull(ctx, def.Container()); err != nil {
		rn.finish(ctx, wf, r, se, run.StatusError, -1, fmt.Sprintf("pull %s: %v", def.Container(), err), nil)
		return
	}

	before := rn.Manager.SnapshotOutputs(layout)
	handle, err := rn.Driver.Run(ctx, container.RunSpec{
		Image:      def.Container(),
		Command:    resolvedCommand,
		Mounts:     []container.Mount{{HostPath: layout.Root, ContainerPath: layout.Root}},
		CPU:        resources.CPU,
		Memory:     resources.Memory,
		WorkingDir: layout.Root,
		LogFile:    layout.LogPath(def.Name()),
	})
	if err != nil {
		rn.finish(ctx, wf, r, se, run.StatusError, -1, fmt.Sprintf("launch %s: %v", def.Container(), err), nil)
		return
	}

	status, exitCode, errText := rn.awaitOutcome(ctx, handle, limitSeconds)

	produced, _ := rn.Manager.DiscoverOutputs(layout, before)
	rn.finish(ctx, wf, r, se, status, exitCode, errText, produced)
}

// awaitOutcome composes the structured wait-for-either of §5: container
// exit, timer expiry, or external cancellation. Whichever fires first wins;
// on the losing paths a stop/kill escalation is issued.
func (rn *Runner) awaitOutcome(ctx context.Context, handle *container.Handle, limitSeconds int64) (run.Status, int, string) {
	var timerCh <-chan time.Time
	if limitSeconds > 0 {
		timer := time.NewTimer(time.Duration(limitSeconds) * time.Second)
		defer timer.Stop()
		timerCh = timer.C
	}

	select {
	case <-handle.Done():
		code, _ := rn.Driver.Wait(handle)
		if code == 0 {
			return run.StatusCompleted, code, ""
		}
		return run.StatusFailed, code, fmt.Sprintf("exit code %d", code)

	case <-timerCh:
		rn.stopThenKill(handle)
		code, _ := rn.Driver.Wait(handle)
		return run.StatusTerminatedTimeLimit, code, fmt.Sprintf("time limit of %ds exceeded", limitSeconds)

	case <-ctx.Done():
		rn.stopThenKill(handle)
		code, _ := rn.Driver.Wait(handle)
		return run.StatusTerminatedTimeLimit, code, "run cancelled"
	}
}

func (rn *Runner) stopThenKill(handle *container.Handle) {
	_ = rn.Driver.Stop(context.Background(), handle, rn.Grace)
	select {
	case <-handle.Done():
	case <-time.After(time.Duration(rn.Grace) * time.Second):
		_ = rn.Driver.Kill(context.Background(), handle)
		<-handle.Done()
	}
}

func (rn *Runner) finish(ctx context.Context, wf *workflow.Workflow, r *run.Run, se *run.StepExecution, status run.Status, exitCode int, errText string, produced []string) {
	se.Finish(time.Now(), status, exitCode, errText, produced)
	rn.persist(func() error { return rn.Repository.UpdateStepExecution(se) })

	eventType := eventbus.EventStepCompleted
	if status != run.StatusCompleted {
		eventType = eventbus.EventStepFailed
	}
	rn.publish(ctx, wf, r, eventType, se, map[string]interface{}{
		"duration_seconds": metrics.StepDuration(se.StartTime(), se.EndTime()),
		"exit_code":        exitCode,
		"error":            errText,
	})
	rn.log(ctx, r, se, status, exitCode, errText)
}

// log writes an operational log entry for a step's terminal outcome,
// tolerating a nil Logger so tests can construct a Runner without one.
func (rn *Runner) log(ctx context.Context, r *run.Run, se *run.StepExecution, status run.Status, exitCode int, errText string) {
	if rn.Logger == nil {
		return
	}
	scoped := context.WithValue(context.WithValue(ctx, logger.RunIDKey, r.RunID()), logger.StepNameKey, se.StepName())
	attrs := map[string]interface{}{"status": string(status), "exit_code": exitCode, "attempt": se.Attempt()}
	if status == run.StatusCompleted {
		rn.Logger.Info(scoped, "step finished", attrs)
		return
	}
	attrs["error"] = errText
	rn.Logger.Error(scoped, "step finished", attrs)
}

// publish forwards a step lifecycle event to rn.Bus, tolerating a nil bus so
// tests can construct a Runner without one.
func (rn *Runner) publish(ctx context.Context, wf *workflow.Workflow, r *run.Run, eventType string, se *run.StepExecution, data map[string]interface{}) {
	if rn.Bus == nil {
		return
	}
	rn.Bus.Publish(ctx, eventbus.Event{
		Type:            eventType,
		WorkflowName:    wf.Name(),
		WorkflowVersion: wf.Version(),
		RunID:           r.RunID(),
		StepName:        se.StepName(),
		Attempt:         se.Attempt(),
		Data:            data,
	})
}

// persist retries once on failure and aborts the run as ERROR on a second
// failure (§7: RepositoryError policy).
func (rn *Runner) persist(fn func() error) {
	if rn.Repository == nil {
		return
	}
	if err := fn(); err == nil {
		return
	}
	if err := fn(); err != nil {
		rn.abortReason.Store(run.NewRepositoryError("persistence failed after retry: %v", err).Error())
		if rn.Cancel != nil {
			rn.Cancel()
		}
	}
}

func stringsToValues(m map[string]string) map[string]workflow.Value {
	out := make(map[string]workflow.Value, len(m))
	for k, v := range m {
		out[k] = workflow.Str(v)
	}
	return out
}

// completedStepOutputs builds the `steps.<step>.outputs.<name>` binding
// scope from every currently-COMPLETED StepExecution in r, keying each
// produced file by its base name without extension.
func completedStepOutputs(r *run.Run) map[string]workflow.Value {
	out := make(map[string]workflow.Value)
	for name, se := range r.StepExecutions() {
		if se.Status() != run.StatusCompleted {
			continue
		}
		outputs := make(map[string]workflow.Value)
		for _, path := range se.ProducedFiles() {
			outputs[outputKey(path)] = workflow.Str(path)
		}
		out[name] = workflow.MapValue(map[string]workflow.Value{
			"outputs": workflow.MapValue(outputs),
		})
	}
	return out
}

func outputKey(path string) string {
	base := path
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}
