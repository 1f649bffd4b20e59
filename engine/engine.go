// Package engine is the façade the CLI and HTTP API drive: it owns the
// lifetime of a scheduler+runner pair per run, wiring together workflow
// loading, run directory management, persistence and the event bus.
// Grounded on the teacher's engine.go functional-options constructor
// (NewEngine(opts ...EngineOption)), retargeted from the teacher's
// closure-based task workflows to the DAG-of-containers model.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bioinfoflow/bioinfoflow/domain/logger"
	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/runner"
	"github.com/bioinfoflow/bioinfoflow/domain/scheduler"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/container"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/eventbus"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/persistence/memory"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/rundir"
)

// Engine is the only entry point the CLI and HTTP API invoke.
type Engine struct {
	repository         run.Repository
	driver             container.Driver
	manager            *rundir.Manager
	bus                eventbus.Bus
	logSvc             logger.Service
	defaultTimeLimit   int64
	defaultParallelism int
	grace              int64

	mutex      sync.Mutex
	cancelFns  map[string]context.CancelFunc
}

// Option configures an Engine, matching the teacher's EngineOption shape.
type Option func(*Engine)

func WithRepository(repo run.Repository) Option {
	return func(e *Engine) { e.repository = repo }
}

func WithContainerDriver(driver container.Driver) Option {
	return func(e *Engine) { e.driver = driver }
}

func WithRunDirManager(manager *rundir.Manager) Option {
	return func(e *Engine) { e.manager = manager }
}

func WithEventBus(bus eventbus.Bus) Option {
	return func(e *Engine) { e.bus = bus }
}

func WithLogger(svc logger.Service) Option {
	return func(e *Engine) { e.logSvc = svc }
}

func WithDefaultTimeLimit(seconds int64) Option {
	return func(e *Engine) { e.defaultTimeLimit = seconds }
}

func WithDefaultParallelism(n int) Option {
	return func(e *Engine) { e.defaultParallelism = n }
}

func WithGracePeriod(seconds int64) Option {
	return func(e *Engine) { e.grace = seconds }
}

// New builds an Engine. A nil driver or bus is valid: driver defaults to
// the docker CLI driver, bus defaults to a no-op-free in-process bus.
func New(opts ...Option) *Engine {
	e := &Engine{
		defaultTimeLimit:   3600,
		defaultParallelism: 4,
		grace:              10,
		cancelFns:          make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.driver == nil {
		e.driver = container.NewDockerDriver("")
	}
	if e.bus == nil {
		e.bus = eventbus.New()
	}
	if e.logSvc == nil {
		e.logSvc = logger.NewService(memory.NewLogRepository(), 20, 5*time.Second)
	}
	return e
}

// RunOptions carries the per-invocation overrides §4.8's Run signature
// exposes beyond the workflow path and inputs.
type RunOptions struct {
	Parallel      int   // 0 means use the engine default
	TimeLimit     int64 // 0 means use the engine default; negative disables the timer
	DisableLimits bool
}

// Run loads workflowPath, creates a fresh run, and drives it to completion.
func (e *Engine) Run(ctx context.Context, workflowPath string, inputs map[string]string, opts RunOptions) (*run.Run, error) {
	wf, err := workflow.LoadFile(workflowPath)
	if err != nil {
		return nil, err
	}

	registered, err := e.repository.CreateWorkflow(wf)
	if err != nil {
		return nil, err
	}

	return e.start(ctx, registered, inputs, opts)
}

// RunRegistered starts a fresh run of a workflow already registered with the
// repository, addressed by (name, version) — the path POST
// /workflows/{id}/run drives, as opposed to Run's from-a-file path.
func (e *Engine) RunRegistered(ctx context.Context, name, version string, inputs map[string]string, opts RunOptions) (*run.Run, error) {
	wf, err := e.repository.GetWorkflowByNameVersion(name, version)
	if err != nil {
		return nil, err
	}
	return e.start(ctx, wf, inputs, opts)
}

func (e *Engine) start(ctx context.Context, registered *workflow.Workflow, inputs map[string]string, opts RunOptions) (*run.Run, error) {
	runID := run.GenerateID(time.Now())
	layout, err := e.manager.Create(registered.Name(), registered.Version(), runID)
	if err != nil {
		return nil, err
	}

	merged := mergeInputs(registered.Inputs(), inputs)

	// The run row is minted and persisted here, before input staging is
	// attempted, so an InputStagingError still leaves a queryable ERROR run
	// behind for the CLI and HTTP API (§7: "surfaced before first dispatch;
	// run recorded as ERROR") rather than vanishing silently.
	r := run.NewRun(runID, registered.Name(), registered.Version(), merged, layout.Root)
	if err := e.repository.CreateRun(r); err != nil {
		return nil, err
	}

	resolvedInputs, err := e.manager.StageInputs(layout, ".", merged)
	if err != nil {
		r.Finish(time.Now(), run.StatusError)
		_ = e.repository.UpdateRunStatus(r)
		return r, err
	}
	r.SetInputs(resolvedInputs)

	return e.execute(ctx, registered, r, layout, opts, nil)
}

// RegisterWorkflow persists wf without running it, for POST /workflows.
func (e *Engine) RegisterWorkflow(ctx context.Context, wf *workflow.Workflow) (*workflow.Workflow, error) {
	return e.repository.CreateWorkflow(wf)
}

// ListWorkflows returns every registered workflow.
func (e *Engine) ListWorkflows(ctx context.Context) ([]*workflow.Workflow, error) {
	return e.repository.ListWorkflows()
}

// GetWorkflow looks up a registered workflow by name and, optionally,
// version; an empty version returns the first match ListWorkflows reports
// for that name.
func (e *Engine) GetWorkflow(ctx context.Context, name, version string) (*workflow.Workflow, error) {
	if version != "" {
		return e.repository.GetWorkflowByNameVersion(name, version)
	}
	all, err := e.repository.ListWorkflows()
	if err != nil {
		return nil, err
	}
	for _, wf := range all {
		if wf.Name() == name {
			return wf, nil
		}
	}
	return nil, run.NewRepositoryError("workflow not found: %s", name)
}

// DeleteRun removes a terminal run's history.
func (e *Engine) DeleteRun(ctx context.Context, runID string) error {
	return e.repository.DeleteRun(runID)
}

// Resume reloads a persisted run and re-attempts every step that isn't
// already COMPLETED, applying overrides to the named steps (§4.3 Resume).
// Resuming a run that is already COMPLETED is a no-op: the returned state
// equals the pre-call state, with no StartTime/EndTime/status churn.
func (e *Engine) Resume(ctx context.Context, runID string, overrides map[string]runner.Override) (*run.Run, error) {
	r, err := e.repository.GetRunWithSteps(runID)
	if err != nil {
		return nil, err
	}
	if r.Status() == run.StatusCompleted {
		return r, nil
	}
	wf, err := e.repository.GetWorkflowByNameVersion(r.WorkflowName(), r.WorkflowVersion())
	if err != nil {
		return nil, err
	}

	layout, err := e.manager.Create(wf.Name(), wf.Version(), r.RunID())
	if err != nil {
		return nil, err
	}

	return e.execute(ctx, wf, r, layout, RunOptions{}, overrides)
}

func (e *Engine) execute(ctx context.Context, wf *workflow.Workflow, r *run.Run, layout rundir.Layout, opts RunOptions, overrides map[string]runner.Override) (*run.Run, error) {
	parallel := e.defaultParallelism
	if opts.Parallel > 0 {
		parallel = opts.Parallel
	}
	limit := e.defaultTimeLimit
	if opts.TimeLimit > 0 {
		limit = opts.TimeLimit
	}
	if opts.TimeLimit < 0 || opts.DisableLimits {
		limit = 0
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mutex.Lock()
	e.cancelFns[r.RunID()] = cancel
	e.mutex.Unlock()
	defer func() {
		e.mutex.Lock()
		delete(e.cancelFns, r.RunID())
		e.mutex.Unlock()
	}()

	rn := &runner.Runner{
		Driver:           e.driver,
		Manager:          e.manager,
		Repository:       e.repository,
		DefaultTimeLimit: limit,
		Grace:            e.grace,
		Overrides:        overrides,
		Cancel:           cancel,
		Bus:              e.bus,
		Logger:           e.logSvc,
	}

	if doc, err := wf.MarshalDocument(); err != nil {
		e.logSvc.Warn(context.WithValue(runCtx, logger.RunIDKey, r.RunID()), "workflow snapshot skipped", map[string]interface{}{"error": err.Error()})
	} else if err := e.manager.SnapshotWorkflow(layout.Root, doc); err != nil {
		e.logSvc.Warn(context.WithValue(runCtx, logger.RunIDKey, r.RunID()), "workflow snapshot skipped", map[string]interface{}{"error": err.Error()})
	}

	r.Start(time.Now())
	_ = e.repository.UpdateRunStatus(r)
	e.publish(runCtx, wf, r, eventbus.EventRunStarted, nil)
	e.logSvc.Info(context.WithValue(runCtx, logger.RunIDKey, r.RunID()), "run started", map[string]interface{}{
		"workflow": wf.Name(), "version": wf.Version(), "parallel": parallel,
	})

	sched := scheduler.New(parallel)
	runErr := sched.Run(runCtx, wf, r, rn.Execute(runCtx, r, layout, wf))

	e.manager.CleanTmp(layout)

	finalStatus := r.RecomputeStatus()
	_, aborted := rn.AbortReason()
	switch {
	case aborted:
		// A repository write failed twice in a row (§7 RepositoryError
		// policy): override whatever the skip cascade computed with ERROR.
		finalStatus = run.StatusError
	case runErr != nil:
		// ctx was cancelled out from under the scheduler; every remaining
		// step was skipped for that reason, not because a dependency
		// failed, so RecomputeStatus's COMPLETED/FAILED verdict does not
		// apply here.
		finalStatus = run.StatusSkipped
	}
	r.Finish(time.Now(), finalStatus)
	_ = e.repository.UpdateRunStatus(r)
	e.logSvc.Info(context.WithValue(ctx, logger.RunIDKey, r.RunID()), "run finished", map[string]interface{}{
		"status": string(finalStatus),
	})

	switch finalStatus {
	case run.StatusCompleted:
		e.publish(ctx, wf, r, eventbus.EventRunCompleted, nil)
	case run.StatusSkipped:
		e.publish(ctx, wf, r, eventbus.EventRunCancelled, nil)
	default:
		e.publish(ctx, wf, r, eventbus.EventRunFailed, map[string]interface{}{"status": string(finalStatus)})
	}

	return r, nil
}

// Cancel aborts a run in flight. It returns an error if the run is not
// currently executing on this Engine instance.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mutex.Lock()
	cancel, ok := e.cancelFns[runID]
	e.mutex.Unlock()
	if !ok {
		return fmt.Errorf("run %s is not in flight", runID)
	}
	cancel()
	return nil
}

// Status returns the current persisted state of a run and its steps.
func (e *Engine) Status(ctx context.Context, runID string) (*run.Run, error) {
	return e.repository.GetRunWithSteps(runID)
}

// List returns run summaries matching filter.
func (e *Engine) List(ctx context.Context, filter run.ListFilter) ([]*run.Run, error) {
	return e.repository.ListRuns(filter)
}

func (e *Engine) publish(ctx context.Context, wf *workflow.Workflow, r *run.Run, eventType string, data map[string]interface{}) {
	e.bus.Publish(ctx, eventbus.Event{
		Type:            eventType,
		WorkflowName:    wf.Name(),
		WorkflowVersion: wf.Version(),
		RunID:           r.RunID(),
		Data:            data,
	})
}

func mergeInputs(declared map[string]string, provided map[string]string) map[string]string {
	out := make(map[string]string, len(declared))
	for k, v := range declared {
		out[k] = v
	}
	for k, v := range provided {
		out[k] = v
	}
	return out
}
