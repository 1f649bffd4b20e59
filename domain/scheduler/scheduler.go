// Package scheduler implements the DAG scheduler of §4.3: topological
// admission, bounded-parallel dispatch, skip propagation on failure, and
// resume semantics. It owns StepExecution mutation for the run in flight;
// everything about *how* a step executes lives one layer down, in the step
// runner it calls back into.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bioinfoflow/bioinfoflow/domain/run"
	"github.com/bioinfoflow/bioinfoflow/domain/workflow"
)

// Execute runs one StepExecution to a terminal state, mutating se via
// Start/Finish/Skip as it goes. It must itself observe ctx cancellation and
// issue stop/kill to whatever it started (§5); the scheduler only waits for
// it to return.
type Execute func(ctx context.Context, def *workflow.StepDefinition, se *run.StepExecution)

// Scheduler drives one run's dispatch loop.
type Scheduler struct {
	Parallelism int
}

func New(parallelism int) *Scheduler {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Scheduler{Parallelism: parallelism}
}

// Run drives r to completion against wf, calling execute for every step
// that becomes ready. Steps already COMPLETED on r (resume) are treated as
// satisfied and never re-run; any other pre-existing StepExecution is
// re-attempted from PENDING. Returns ctx.Err() on cancellation, nil
// otherwise; the run's terminal per-step state is always readable from r
// once Run returns.
func (s *Scheduler) Run(ctx context.Context, wf *workflow.Workflow, r *run.Run, execute Execute) error {
	order := wf.StepOrder()
	steps := wf.Steps()

	status := make(map[string]run.Status, len(order))
	for _, name := range order {
		if se, ok := r.StepExecution(name); ok && se.Status() == run.StatusCompleted {
			status[name] = run.StatusCompleted
		} else {
			status[name] = run.StatusPending
		}
	}

	queued := make(map[string]bool, len(order))
	var readyQueue []string

	admit := func() {
		changed := true
		for changed {
			changed = false
			for _, name := range order {
				if status[name] != run.StatusPending || queued[name] {
					continue
				}
				def := steps[name]
				ready := true
				var blockedBy string
				for _, dep := range def.After() {
					depStatus := status[dep]
					if depStatus == run.StatusCompleted {
						continue
					}
					if depStatus.IsTerminal() {
						blockedBy = dep
						ready = false
						break
					}
					ready = false
				}
				switch {
				case blockedBy != "":
					se := newAttempt(r, name)
					se.Skip(time.Now(), fmt.Sprintf("dependency %s did not complete", blockedBy))
					r.PutStepExecution(se)
					status[name] = run.StatusSkipped
					changed = true
				case ready:
					readyQueue = append(readyQueue, name)
					queued[name] = true
					changed = true
				}
			}
		}
	}

	doneCh := make(chan string, len(order))
	inFlight := 0

	dispatch := func(name string) {
		def := steps[name]
		se := newAttempt(r, name)
		r.PutStepExecution(se)
		status[name] = run.StatusRunning
		inFlight++
		go func() {
			execute(ctx, def, se)
			doneCh <- name
		}()
	}

	for {
		admit()

		for inFlight < s.Parallelism && len(readyQueue) > 0 {
			name := readyQueue[0]
			readyQueue = readyQueue[1:]
			dispatch(name)
		}

		if inFlight == 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			for _, name := range order {
				if status[name] == run.StatusPending {
					se := newAttempt(r, name)
					se.Skip(time.Now(), "run cancelled")
					r.PutStepExecution(se)
					status[name] = run.StatusSkipped
				}
			}
			for inFlight > 0 {
				<-doneCh
				inFlight--
			}
			return ctx.Err()

		case name := <-doneCh:
			se, _ := r.StepExecution(name)
			status[name] = se.Status()
			inFlight--
		}
	}
}

// newAttempt allocates the next StepExecution attempt for name, counting
// every prior attempt recorded in r's history (§3: resume creates a new
// StepExecution row rather than mutating the old one).
func newAttempt(r *run.Run, name string) *run.StepExecution {
	attempt := 1
	for _, se := range r.History() {
		if se.StepName() == name {
			attempt++
		}
	}
	return run.NewStepExecution(r.RunID(), name, attempt)
}
