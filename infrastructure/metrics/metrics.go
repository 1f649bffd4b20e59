// Package metrics exposes Prometheus counters and histograms for run and
// step outcomes, grounded on the promauto package-level metric convention
// used throughout the corpus (e.g. tombee-conductor's filewatcher metrics).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bioinfoflow/bioinfoflow/infrastructure/eventbus"
)

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bioinfoflow_runs_total",
			Help: "Total workflow runs by workflow name and terminal status",
		},
		[]string{"workflow", "status"},
	)

	runsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bioinfoflow_runs_in_flight",
			Help: "Number of runs currently executing",
		},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bioinfoflow_steps_total",
			Help: "Total step executions by step name and terminal status",
		},
		[]string{"step", "status"},
	)

	stepsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bioinfoflow_steps_running",
			Help: "Number of steps currently executing across all runs",
		},
	)

	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bioinfoflow_step_duration_seconds",
			Help:    "Step execution duration in seconds by step name and terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~1h
		},
		[]string{"step", "status"},
	)
)

// Subscribe wires the metrics collectors to bus, so every scheduler/runner
// lifecycle event updates the exported series.
func Subscribe(bus eventbus.Bus) {
	bus.Subscribe(eventbus.EventRunStarted, func(e eventbus.Event) error {
		runsInFlight.Inc()
		return nil
	})
	bus.Subscribe(eventbus.EventRunCompleted, terminalRunHandler("COMPLETED"))
	bus.Subscribe(eventbus.EventRunFailed, terminalRunHandler("FAILED"))
	bus.Subscribe(eventbus.EventRunCancelled, terminalRunHandler("CANCELLED"))

	bus.Subscribe(eventbus.EventStepStarted, func(e eventbus.Event) error {
		stepsRunning.Inc()
		return nil
	})
	bus.Subscribe(eventbus.EventStepCompleted, terminalStepHandler("COMPLETED"))
	bus.Subscribe(eventbus.EventStepFailed, terminalStepHandler("FAILED"))
	bus.Subscribe(eventbus.EventStepSkipped, terminalStepHandler("SKIPPED"))
}

func terminalRunHandler(status string) eventbus.Handler {
	return func(e eventbus.Event) error {
		runsTotal.WithLabelValues(e.WorkflowName, status).Inc()
		runsInFlight.Dec()
		return nil
	}
}

func terminalStepHandler(status string) eventbus.Handler {
	return func(e eventbus.Event) error {
		stepsTotal.WithLabelValues(e.StepName, status).Inc()
		stepsRunning.Dec()
		if d, ok := e.Data["duration_seconds"].(float64); ok {
			stepDuration.WithLabelValues(e.StepName, status).Observe(d)
		}
		return nil
	}
}

// StepDuration is a convenience the step runner calls to attach a
// duration_seconds field to a step lifecycle event's Data map.
func StepDuration(start, end time.Time) float64 {
	return end.Sub(start).Seconds()
}
