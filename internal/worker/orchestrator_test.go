package worker

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/conversion-tracker/internal/logging"
)

func testLogger() *logging.Logger {
	l := logging.NewLogger(logging.LevelFatal, logging.FormatText)
	l.SetOutput(io.Discard)
	return l
}

func countingTask(name string, interval time.Duration, count *int, err error) *Task {
	return &Task{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) error {
			*count++
			return err
		},
	}
}

func TestRunTick_RunsAllTasksFirstPass(t *testing.T) {
	var a, b int
	o := NewOrchestrator([]*Task{
		countingTask("a", time.Hour, &a, nil),
		countingTask("b", time.Hour, &b, nil),
	}, testLogger())

	o.RunTick(context.Background())

	if a != 1 || b != 1 {
		t.Errorf("runs = %d/%d, want 1/1 on the first tick", a, b)
	}
}

func TestRunTick_GatesOnInterval(t *testing.T) {
	var runs int
	o := NewOrchestrator([]*Task{
		countingTask("gated", time.Hour, &runs, nil),
	}, testLogger())

	o.RunTick(context.Background())
	o.RunTick(context.Background())

	if runs != 1 {
		t.Errorf("runs = %d, want 1 (interval has not elapsed)", runs)
	}
}

func TestRunTick_ZeroIntervalRunsEveryTick(t *testing.T) {
	var runs int
	o := NewOrchestrator([]*Task{
		countingTask("eager", 0, &runs, nil),
	}, testLogger())

	o.RunTick(context.Background())
	o.RunTick(context.Background())
	o.RunTick(context.Background())

	if runs != 3 {
		t.Errorf("runs = %d, want 3", runs)
	}
}

func TestRunTick_FailureDoesNotStopSiblings(t *testing.T) {
	var failing, following int
	o := NewOrchestrator([]*Task{
		countingTask("failing", time.Hour, &failing, errors.New("backend unreachable")),
		countingTask("following", time.Hour, &following, nil),
	}, testLogger())

	o.RunTick(context.Background())

	if following != 1 {
		t.Errorf("following runs = %d, want 1 after sibling failure", following)
	}
}

func TestRunTick_PanicRecovered(t *testing.T) {
	var following int
	o := NewOrchestrator([]*Task{
		{
			Name:     "panicking",
			Interval: time.Hour,
			Run:      func(ctx context.Context) error { panic("boom") },
		},
		countingTask("following", time.Hour, &following, nil),
	}, testLogger())

	o.RunTick(context.Background())

	if following != 1 {
		t.Errorf("following runs = %d, want 1 after sibling panic", following)
	}
}

func TestRunTick_LastRunAdvancesOnFailure(t *testing.T) {
	var runs int
	o := NewOrchestrator([]*Task{
		countingTask("failing", time.Hour, &runs, errors.New("still broken")),
	}, testLogger())

	o.RunTick(context.Background())

	if _, ok := o.LastRun("failing"); !ok {
		t.Error("LastRun not set after a failed run; failing tasks must not retry every tick")
	}

	o.RunTick(context.Background())
	if runs != 1 {
		t.Errorf("runs = %d, want 1 (failure keeps its gate)", runs)
	}
}

func TestOrchestrator_StartStop(t *testing.T) {
	var runs int
	o := NewOrchestrator([]*Task{
		countingTask("tick", 0, &runs, nil),
	}, testLogger())

	ctx := context.Background()
	if err := o.Start(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := o.Start(ctx, 10*time.Millisecond); err == nil {
		t.Error("second Start() expected to fail while running")
	}

	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if runs == 0 {
		t.Error("task never ran while the orchestrator was started")
	}
}
