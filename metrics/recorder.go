package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const outcomeLabel = "outcome"

// Recorder tracks batch execution metrics on top of a Registry. It
// implements the batch package's Recorder interface and works in both push
// and scrape modes.
type Recorder struct {
	tasks       CounterVec
	taskSeconds Counter
	inFlight    Gauge
	batches     CounterVec
}

// NewRecorder creates the batch metrics on the given registry.
func NewRecorder(reg Registry) (*Recorder, error) {
	tasks, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "tasks_total",
		Help: "Number of settled batch tasks by outcome.",
	}, []string{outcomeLabel})
	if err != nil {
		return nil, fmt.Errorf("creating tasks counter: %w", err)
	}

	taskSeconds, err := reg.NewCounter(prometheus.CounterOpts{
		Name: "task_seconds_total",
		Help: "Total time spent executing batch tasks.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating task seconds counter: %w", err)
	}

	inFlight, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "tasks_in_flight",
		Help: "Number of batch tasks currently executing.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating in-flight gauge: %w", err)
	}

	batches, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "batches_total",
		Help: "Number of resolved batches by outcome.",
	}, []string{outcomeLabel})
	if err != nil {
		return nil, fmt.Errorf("creating batches counter: %w", err)
	}

	return &Recorder{
		tasks:       tasks,
		taskSeconds: taskSeconds,
		inFlight:    inFlight,
		batches:     batches,
	}, nil
}

// TaskStarted records the start of one task.
func (r *Recorder) TaskStarted(id string) {
	r.inFlight.Inc()
}

// TaskSettled records one task reaching a terminal state.
func (r *Recorder) TaskSettled(id string, failed bool, seconds float64) {
	r.inFlight.Dec()
	r.taskSeconds.Add(seconds)
	r.tasks.With(prometheus.Labels{outcomeLabel: outcome(failed)}).Inc()
}

// BatchSettled records the terminal outcome of one batch run.
func (r *Recorder) BatchSettled(failed bool) {
	r.batches.With(prometheus.Labels{outcomeLabel: outcome(failed)}).Inc()
}

func outcome(failed bool) string {
	if failed {
		return "failure"
	}
	return "success"
}
