// Package run holds the Run and StepExecution aggregates: the durable
// record of one workflow execution and the per-step attempts within it.
// The scheduler owns StepExecution mutation while a run is in flight; the
// repository owns Run and Workflow rows.
package run

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

// GenerateID mints a run_id of the form YYYYMMDD_HHMMSS_<8-hex>, per §3.
func GenerateID(now time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return now.Format("20060102_150405") + "_" + hex.EncodeToString(buf)
}

// StepExecution is one attempt at running a single step. A step re-run on
// resume produces a new StepExecution with an incremented Attempt rather
// than mutating the previous row (§3).
type StepExecution struct {
	mutex sync.RWMutex

	runID    string
	stepName string
	attempt  int

	status        Status
	startTime     time.Time
	endTime       time.Time
	exitCode      int
	errorText     string
	logFile       string
	producedFiles []string
}

// NewStepExecution creates a fresh, PENDING attempt.
func NewStepExecution(runID, stepName string, attempt int) *StepExecution {
	return &StepExecution{
		runID:    runID,
		stepName: stepName,
		attempt:  attempt,
		status:   StatusPending,
	}
}

func (s *StepExecution) RunID() string    { return s.runID }
func (s *StepExecution) StepName() string { return s.stepName }
func (s *StepExecution) Attempt() int     { return s.attempt }

func (s *StepExecution) Status() Status {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.status
}

func (s *StepExecution) StartTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.startTime
}

func (s *StepExecution) EndTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.endTime
}

func (s *StepExecution) ExitCode() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.exitCode
}

func (s *StepExecution) ErrorText() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.errorText
}

func (s *StepExecution) LogFile() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.logFile
}

func (s *StepExecution) ProducedFiles() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.producedFiles
}

func (s *StepExecution) SetLogFile(path string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.logFile = path
}

// Start transitions PENDING -> RUNNING and records the start time.
func (s *StepExecution) Start(at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = StatusRunning
	s.startTime = at
}

// Finish records a terminal status reached after the container exited or
// the runner gave up, per the state machine in §4.3.
func (s *StepExecution) Finish(at time.Time, status Status, exitCode int, errText string, produced []string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = status
	s.endTime = at
	s.exitCode = exitCode
	s.errorText = errText
	s.producedFiles = produced
}

// Skip marks the step SKIPPED without ever having run, because a
// dependency did not reach COMPLETED (§4.3 readiness rule).
func (s *StepExecution) Skip(at time.Time, reason string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.status = StatusSkipped
	s.endTime = at
	s.errorText = reason
}

// Snapshot is an immutable copy of a StepExecution's fields, safe to hand
// to callers outside the scheduler's control path (HTTP handlers, CLI).
type Snapshot struct {
	RunID         string
	StepName      string
	Attempt       int
	Status        Status
	StartTime     time.Time
	EndTime       time.Time
	ExitCode      int
	ErrorText     string
	LogFile       string
	ProducedFiles []string
}

func (s *StepExecution) Snapshot() Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return Snapshot{
		RunID:         s.runID,
		StepName:      s.stepName,
		Attempt:       s.attempt,
		Status:        s.status,
		StartTime:     s.startTime,
		EndTime:       s.endTime,
		ExitCode:      s.exitCode,
		ErrorText:     s.errorText,
		LogFile:       s.logFile,
		ProducedFiles: s.producedFiles,
	}
}

// Run is one execution of a workflow.
type Run struct {
	mutex sync.RWMutex

	runID           string
	workflowName    string
	workflowVersion string
	status          Status
	startTime       time.Time
	endTime         time.Time
	inputs          map[string]string
	runDir          string

	// steps holds the current (latest-attempt) StepExecution per step name.
	steps map[string]*StepExecution
	// history holds every StepExecution ever created, including
	// superseded attempts from prior resumes.
	history []*StepExecution
}

// NewRun creates a fresh run in PENDING status.
func NewRun(runID, workflowName, workflowVersion string, inputs map[string]string, runDir string) *Run {
	return &Run{
		runID:           runID,
		workflowName:    workflowName,
		workflowVersion: workflowVersion,
		status:          StatusPending,
		inputs:          inputs,
		runDir:          runDir,
		steps:           make(map[string]*StepExecution),
	}
}

func (r *Run) RunID() string           { return r.runID }
func (r *Run) WorkflowName() string    { return r.workflowName }
func (r *Run) WorkflowVersion() string { return r.workflowVersion }
func (r *Run) Inputs() map[string]string { return r.inputs }
func (r *Run) RunDir() string          { return r.runDir }

// SetInputs replaces the run's recorded input bindings, once input staging
// has resolved each declared glob to its staged path (§4.6). The run row is
// created with its pre-staging, unresolved inputs so it exists even if
// staging then fails (§7 InputStagingError policy).
func (r *Run) SetInputs(inputs map[string]string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.inputs = inputs
}

func (r *Run) Status() Status {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.status
}

func (r *Run) StartTime() time.Time {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.startTime
}

func (r *Run) EndTime() time.Time {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.endTime
}

func (r *Run) SetStatus(status Status) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.status = status
}

func (r *Run) Start(at time.Time) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.status = StatusRunning
	r.startTime = at
}

func (r *Run) Finish(at time.Time, status Status) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.status = status
	r.endTime = at
}

// PutStepExecution registers se as the current attempt for its step,
// keeping the full attempt history for audit (§8 S6: "original failed
// executions remain in history").
func (r *Run) PutStepExecution(se *StepExecution) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.steps[se.StepName()] = se
	r.history = append(r.history, se)
}

func (r *Run) StepExecution(name string) (*StepExecution, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	se, ok := r.steps[name]
	return se, ok
}

func (r *Run) StepExecutions() map[string]*StepExecution {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make(map[string]*StepExecution, len(r.steps))
	for k, v := range r.steps {
		out[k] = v
	}
	return out
}

// History returns every StepExecution ever created for this run, current
// and superseded, in creation order.
func (r *Run) History() []*StepExecution {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	out := make([]*StepExecution, len(r.history))
	copy(out, r.history)
	return out
}

// RecomputeStatus derives the Run's status from its current StepExecutions,
// following the invariant in §3: COMPLETED iff every step is COMPLETED or
// SKIPPED; FAILED if any step failed/errored/timed-out and nothing is still
// pending or running.
func (r *Run) RecomputeStatus() Status {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	anyFailure := false
	anyActive := false
	allDone := true
	for _, se := range r.steps {
		st := se.Status()
		switch st {
		case StatusPending, StatusRunning:
			anyActive = true
			allDone = false
		case StatusFailed, StatusError, StatusTerminatedTimeLimit:
			anyFailure = true
		case StatusSkipped, StatusCompleted:
			// satisfied
		}
	}
	if anyFailure && !anyActive {
		return StatusFailed
	}
	if allDone && !anyFailure {
		return StatusCompleted
	}
	return StatusRunning
}
