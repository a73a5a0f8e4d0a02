// Package schedule provides cron-based triggering of batch runs.
//
// A Trigger wraps a Runnable and executes it according to a cron schedule.
// It is designed to be started once and run until the context is cancelled.
//
//	trigger, err := schedule.NewTrigger("0 2 * * *", runner, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)  // Returns immediately, runs in background
//	<-ctx.Done()        // Wait for shutdown signal
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSpec is returned when the cron specification cannot be parsed.
var ErrInvalidSpec = errors.New("invalid cron spec")

// Runnable is implemented by anything that can be triggered by the scheduler.
type Runnable interface {
	Run() error
}

// RunnableFunc adapts a plain function to the Runnable interface.
type RunnableFunc func() error

// Run calls f.
func (f RunnableFunc) Run() error { return f() }

// Trigger executes a Runnable according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	runnable Runnable
	logger   *slog.Logger
}

// NewTrigger creates a Trigger with the given cron specification. The spec
// follows standard cron format (5 fields: minute, hour, day, month,
// weekday). Returns ErrInvalidSpec if the specification cannot be parsed.
func NewTrigger(spec string, runnable Runnable, logger *slog.Logger) (*Trigger, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidSpec, err)
	}

	return &Trigger{
		spec:     spec,
		schedule: sched,
		runnable: runnable,
		logger:   logger.With("component", "schedule"),
	}, nil
}

// Start launches a goroutine that triggers runs according to the schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(time.Now())
}

// loop is the main scheduling loop that runs in a goroutine.
func (t *Trigger) loop(ctx context.Context) {
	for {
		nextRun := t.schedule.Next(time.Now())

		t.logger.Debug("waiting for next scheduled run",
			"spec", t.spec,
			"next_run", nextRun,
		)

		select {
		case <-ctx.Done():
			t.logger.Info("trigger shutting down")
			return
		case <-time.After(time.Until(nextRun)):
			t.execute()
		}
	}
}

// execute runs the runnable and logs the result.
func (t *Trigger) execute() {
	t.logger.Info("starting scheduled batch run")

	if err := t.runnable.Run(); err != nil {
		t.logger.Warn("scheduled run completed with error", "error", err)
	} else {
		t.logger.Info("scheduled run completed successfully")
	}
}
