package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/container"
	"github.com/bioinfoflow/bioinfoflow/infrastructure/rundir"
)

// stubRepository is a minimal run.Repository double recording step
// transitions, used so runner tests don't depend on a persistence backend.
type stubRepository struct {
	mutex        sync.Mutex
	added        []string
	updated      []string
	failNext     bool
	failNextOnce bool
}

func (s *stubRepository) CreateWorkflow(wf *workflow.Workflow) (*workflow.Workflow, error) { return wf, nil }
func (s *stubRepository) GetWorkflowByNameVersion(name, version string) (*workflow.Workflow, error) {
	return nil, nil
}
func (s *stubRepository) ListWorkflows() ([]*workflow.Workflow, error) { return nil, nil }
func (s *stubRepository) CreateRun(r *run.Run) error                   { return nil }
func (s *stubRepository) UpdateRunStatus(r *run.Run) error             { return nil }
func (s *stubRepository) GetRunWithSteps(runID string) (*run.Run, error) { return nil, nil }
func (s *stubRepository) ListRuns(filter run.ListFilter) ([]*run.Run, error) { return nil, nil }
func (s *stubRepository) DeleteRun(runID string) error                 { return nil }

func (s *stubRepository) AddStepExecution(se *run.StepExecution) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.added = append(s.added, se.StepName())
	return nil
}

func (s *stubRepository) UpdateStepExecution(se *run.StepExecution) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.failNext {
		s.failNext = false
		return assert.AnError
	}
	s.updated = append(s.updated, se.StepName())
	return nil
}

func setup(t *testing.T) (*workflow.Workflow, *run.Run, rundir.Layout, *rundir.Manager) {
	t.Helper()
	wf, err := workflow.Load([]byte(`
name: align
version: "1.0.0"
config:
  reference: hg38
inputs:
  sample: "*.fastq"
steps:
  align:
    container: alignertool
    command: "align --ref ${config.reference} --out ${run_dir}/outputs/align.bam"
    resources:
      time_limit: 5s
`))
	require.NoError(t, err)

	base := t.TempDir()
	mgr := rundir.NewManager(base)
	layout, err := mgr.Create(wf.Name(), wf.Version(), "20260101_000000_deadbeef")
	require.NoError(t, err)

	r := run.NewRun("20260101_000000_deadbeef", wf.Name(), wf.Version(), map[string]string{"sample": "sample.fastq"}, layout.Root)
	return wf, r, layout, mgr
}

func TestRunner_SuccessfulStepCompletes(t *testing.T) {
	wf, r, layout, mgr := setup(t)
	def, _ := wf.Step("align")

	driver := container.NewFakeDriver()
	repo := &stubRepository{}
	rn := &Runner{Driver: driver, Manager: mgr, Repository: repo, DefaultTimeLimit: 60, Grace: 1}

	se := run.NewStepExecution(r.RunID(), "align", 1)
	r.PutStepExecution(se)
	rn.runStep(context.Background(), wf, r, layout, def, se)

	assert.Equal(t, run.StatusCompleted, se.Status())
	assert.Contains(t, driver.Pulled(), "alignertool")
	assert.Contains(t, repo.added, "align")
	assert.Contains(t, repo.updated, "align")
}

func TestRunner_SubstitutesConfigAndRunDir(t *testing.T) {
	wf, r, layout, mgr := setup(t)
	def, _ := wf.Step("align")

	var capturedCommand string
	driver := &capturingDriver{FakeDriver: container.NewFakeDriver()}
	driver.onRun = func(spec container.RunSpec) { capturedCommand = spec.Command }

	rn := &Runner{Driver: driver, Manager: mgr, Repository: &stubRepository{}, DefaultTimeLimit: 60, Grace: 1}
	se := run.NewStepExecution(r.RunID(), "align", 1)
	r.PutStepExecution(se)
	rn.runStep(context.Background(), wf, r, layout, def, se)

	assert.Contains(t, capturedCommand, "align --ref hg38")
	assert.Contains(t, capturedCommand, layout.Root)
}

func TestRunner_TimeLimitExceededTerminates(t *testing.T) {
	wf, err := workflow.Load([]byte(`
name: slow
version: "1.0.0"
steps:
  crawl:
    container: crawler
    command: "sleep 30"
    resources:
      time_limit: 1s
`))
	require.NoError(t, err)

	base := t.TempDir()
	mgr := rundir.NewManager(base)
	layout, err := mgr.Create(wf.Name(), wf.Version(), "20260101_000000_deadbeef")
	require.NoError(t, err)
	r := run.NewRun("20260101_000000_deadbeef", wf.Name(), wf.Version(), nil, layout.Root)

	def, _ := wf.Step("crawl")
	driver := container.NewFakeDriver()
	rn := &Runner{Driver: driver, Manager: mgr, Repository: &stubRepository{}, DefaultTimeLimit: 60, Grace: 1}

	se := run.NewStepExecution(r.RunID(), "crawl", 1)
	r.PutStepExecution(se)

	start := time.Now()
	rn.runStep(context.Background(), wf, r, layout, def, se)

	assert.Equal(t, run.StatusTerminatedTimeLimit, se.Status())
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunner_LaunchErrorRecordsError(t *testing.T) {
	wf, r, layout, mgr := setup(t)
	def, _ := wf.Step("align")

	rn := &Runner{Driver: &erroringDriver{}, Manager: mgr, Repository: &stubRepository{}, DefaultTimeLimit: 60, Grace: 1}
	se := run.NewStepExecution(r.RunID(), "align", 1)
	r.PutStepExecution(se)
	rn.runStep(context.Background(), wf, r, layout, def, se)

	assert.Equal(t, run.StatusError, se.Status())
	assert.NotEmpty(t, se.ErrorText())
}

func TestRunner_RepositoryFailureTwiceAborts(t *testing.T) {
	wf, r, layout, mgr := setup(t)
	def, _ := wf.Step("align")

	driver := container.NewFakeDriver()
	repo := &alwaysFailUpdate{}
	ctx, cancel := context.WithCancel(context.Background())
	cancelled := false
	rn := &Runner{Driver: driver, Manager: mgr, Repository: repo, DefaultTimeLimit: 60, Grace: 1, Cancel: func() {
		cancelled = true
		cancel()
	}}

	se := run.NewStepExecution(r.RunID(), "align", 1)
	r.PutStepExecution(se)
	rn.runStep(ctx, wf, r, layout, def, se)

	assert.True(t, cancelled)
	reason, ok := rn.AbortReason()
	assert.True(t, ok)
	assert.NotEmpty(t, reason)
}

func TestRunner_OverrideReplacesCommand(t *testing.T) {
	wf, r, layout, mgr := setup(t)
	def, _ := wf.Step("align")

	var capturedCommand string
	driver := &capturingDriver{FakeDriver: container.NewFakeDriver()}
	driver.onRun = func(spec container.RunSpec) { capturedCommand = spec.Command }

	rn := &Runner{
		Driver: driver, Manager: mgr, Repository: &stubRepository{}, DefaultTimeLimit: 60, Grace: 1,
		Overrides: map[string]Override{"align": {Command: "align --ref ${config.reference} --retry"}},
	}
	se := run.NewStepExecution(r.RunID(), "align", 2)
	r.PutStepExecution(se)
	rn.runStep(context.Background(), wf, r, layout, def, se)

	assert.Contains(t, capturedCommand, "--retry")
}

func TestOutputKey_StripsExtensionAndDir(t *testing.T) {
	assert.Equal(t, "align", outputKey("align.bam"))
	assert.Equal(t, "align", outputKey("nested/dir/align.bam"))
	assert.Equal(t, "README", outputKey("README"))
}

// capturingDriver wraps FakeDriver to observe the RunSpec passed to Run.
type capturingDriver struct {
	*container.FakeDriver
	onRun func(container.RunSpec)
}

func (c *capturingDriver) Run(ctx context.Context, spec container.RunSpec) (*container.Handle, error) {
	if c.onRun != nil {
		c.onRun(spec)
	}
	return c.FakeDriver.Run(ctx, spec)
}

// erroringDriver fails every Pull, used to exercise the ERROR path.
type erroringDriver struct{}

func (e *erroringDriver) Pull(ctx context.Context, image string) error { return assert.AnError }
func (e *erroringDriver) Run(ctx context.Context, spec container.RunSpec) (*container.Handle, error) {
	return nil, assert.AnError
}
func (e *erroringDriver) Stop(ctx context.Context, h *container.Handle, graceSeconds int64) error {
	return nil
}
func (e *erroringDriver) Kill(ctx context.Context, h *container.Handle) error { return nil }
func (e *erroringDriver) Wait(h *container.Handle) (int, error)              { return -1, nil }

// alwaysFailUpdate fails every repository write, to exercise the abort path.
type alwaysFailUpdate struct{ stubRepository }

func (a *alwaysFailUpdate) AddStepExecution(se *run.StepExecution) error    { return assert.AnError }
func (a *alwaysFailUpdate) UpdateStepExecution(se *run.StepExecution) error { return assert.AnError }
