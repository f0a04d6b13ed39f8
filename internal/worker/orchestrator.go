// Package worker drives the periodic maintenance tasks of the tracker from
// one sequential tick loop.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conversion-tracker/internal/logging"
)

// Task is one periodic unit of work with its own cadence
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Orchestrator executes a fixed, ordered task list on an external tick.
// Within one tick tasks run strictly sequentially: a slow task delays, but
// never corrupts, the rest of the schedule. Each task keeps its own
// last-run gate and a failing or panicking task never stops its siblings.
type Orchestrator struct {
	tasks  []*Task
	logger *logging.Logger

	mu      sync.Mutex
	lastRun map[string]time.Time
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewOrchestrator creates an orchestrator over an ordered task list
func NewOrchestrator(tasks []*Task, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Orchestrator{
		tasks:   tasks,
		logger:  logger,
		lastRun: make(map[string]time.Time),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// RunTick runs one pass over the task list. Tasks whose interval has not
// elapsed are skipped silently; tasks that do run update their last-run gate
// regardless of outcome.
func (o *Orchestrator) RunTick(ctx context.Context) {
	now := time.Now()

	for _, task := range o.tasks {
		o.mu.Lock()
		last, ok := o.lastRun[task.Name]
		due := !ok || now.Sub(last) >= task.Interval
		if due {
			o.lastRun[task.Name] = now
		}
		o.mu.Unlock()

		if !due {
			continue
		}

		o.runTask(ctx, task)
	}
}

func (o *Orchestrator) runTask(ctx context.Context, task *Task) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(map[string]interface{}{
				"task":  task.Name,
				"panic": fmt.Sprintf("%v", r),
			}).Error("Periodic task panicked")
		}
	}()

	start := time.Now()
	if err := task.Run(ctx); err != nil {
		o.logger.WithError(err).WithFields(map[string]interface{}{
			"task": task.Name,
		}).Error("Periodic task failed")
		return
	}

	o.logger.WithFields(map[string]interface{}{
		"task":     task.Name,
		"duration": time.Since(start).String(),
	}).Debug("Periodic task finished")
}

// LastRun returns a task's last-run time and whether it ever ran
func (o *Orchestrator) LastRun(name string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.lastRun[name]
	return t, ok
}

// Start begins the tick loop in a goroutine
func (o *Orchestrator) Start(ctx context.Context, tickInterval time.Duration) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is already running")
	}
	o.running = true
	o.mu.Unlock()

	o.logger.WithFields(map[string]interface{}{
		"tasks":        len(o.tasks),
		"tickInterval": tickInterval.String(),
	}).Info("Starting orchestrator")

	go o.tickLoop(ctx, tickInterval)
	return nil
}

// Stop gracefully stops the tick loop
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator is not running")
	}
	o.mu.Unlock()

	close(o.stopCh)

	select {
	case <-o.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("stop timeout")
	}

	o.mu.Lock()
	o.running = false
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) tickLoop(ctx context.Context, tickInterval time.Duration) {
	defer close(o.doneCh)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// First tick runs immediately so a fresh process does not wait a full
	// interval before pinging the backend.
	o.RunTick(ctx)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Orchestrator context cancelled")
			return
		case <-o.stopCh:
			o.logger.Info("Orchestrator stop signal received")
			return
		case <-ticker.C:
			o.RunTick(ctx)
		}
	}
}
