// Package shutdown implements the staged, timeout-bounded shutdown
// sequence the Engine drives when stopping: a fixed, ordered list of
// named stages, each with its own timeout and fault policy.
package shutdown

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Policy controls what happens when a stage's Func returns an error.
type Policy int

const (
	// ContinueOnError logs the failure and proceeds to the next stage.
	ContinueOnError Policy = iota
	// AbortOnError stops the sequence immediately, leaving later stages
	// un-run.
	AbortOnError
)

func (p Policy) String() string {
	if p == AbortOnError {
		return "AbortOnError"
	}
	return "ContinueOnError"
}

// Status is the Coordinator's overall run state.
type Status int32

const (
	StatusNotStarted Status = iota
	StatusInProgress
	StatusCompleted
	StatusFailed
	StatusTimedOut
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NotStarted"
	case StatusInProgress:
		return "InProgress"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	case StatusTimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// Stage is one named step of the shutdown sequence.
type Stage struct {
	Name    string
	Timeout time.Duration
	Policy  Policy
	Func    func(ctx context.Context) error
}

// StageResult records the outcome of running a single Stage.
type StageResult struct {
	Name     string
	Err      error
	TimedOut bool
	Took     time.Duration
}

// ErrAlreadyRun is returned by Run if the Coordinator has already started
// or completed a shutdown sequence.
var ErrAlreadyRun = fmt.Errorf("shutdown: already run")

// Coordinator runs a fixed, ordered list of Stages, each bounded by its
// own timeout, honoring each Stage's fault Policy. The canonical stage
// order is: StopAcceptingRequests, WebService, AdapterHotReload,
// PluginHotReload, Adapters, Plugins, Workers, Channels, Engine,
// Logging — callers assemble that order via NewCoordinator.
type Coordinator struct {
	stages []Stage
	logger *slog.Logger

	status  atomic.Int32
	results []StageResult
}

// NewCoordinator constructs a Coordinator that will run stages in the
// given order when Run is called.
func NewCoordinator(logger *slog.Logger, stages ...Stage) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{stages: stages, logger: logger.With("component", "ShutdownCoordinator")}
}

// Status reports the Coordinator's current run state.
func (c *Coordinator) Status() Status {
	return Status(c.status.Load())
}

// Results returns the per-stage outcomes of the most recently completed
// (or in-progress) run.
func (c *Coordinator) Results() []StageResult {
	out := make([]StageResult, len(c.results))
	copy(out, c.results)
	return out
}

// Run executes every Stage in order. It returns ErrAlreadyRun if called
// more than once on the same Coordinator. Each Stage's Func is given a
// context bound by its own Timeout (zero means no bound beyond ctx
// itself). A Stage that times out is recorded and treated as an error for
// Policy purposes. AbortOnError on a failing stage ends the run
// immediately, leaving the Coordinator in StatusFailed with later stages
// unexecuted.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.status.CompareAndSwap(int32(StatusNotStarted), int32(StatusInProgress)) {
		return ErrAlreadyRun
	}

	for _, stage := range c.stages {
		result := c.runStage(ctx, stage)
		c.results = append(c.results, result)

		if result.Err == nil {
			continue
		}

		if result.TimedOut {
			c.logger.Error("shutdown stage timed out", "stage", stage.Name, "timeout", stage.Timeout)
		} else {
			c.logger.Error("shutdown stage failed", "stage", stage.Name, "error", result.Err)
		}

		if stage.Policy == AbortOnError {
			c.status.Store(int32(StatusFailed))
			return fmt.Errorf("shutdown stage %q: %w", stage.Name, result.Err)
		}
	}

	failed := false
	timedOut := false
	for _, r := range c.results {
		if r.Err != nil {
			failed = true
		}
		if r.TimedOut {
			timedOut = true
		}
	}

	switch {
	case timedOut:
		c.status.Store(int32(StatusTimedOut))
	case failed:
		c.status.Store(int32(StatusFailed))
	default:
		c.status.Store(int32(StatusCompleted))
	}
	return nil
}

// runStage runs stage.Func in its own goroutine and races it against
// stageCtx's deadline. A handler that ignores ctx cancellation is abandoned
// at the timeout rather than blocking the Coordinator: runStage returns as
// soon as the deadline fires, leaving the goroutine to finish (or not) on
// its own. Its eventual result, if any, is discarded.
func (c *Coordinator) runStage(ctx context.Context, stage Stage) StageResult {
	stageCtx := ctx
	cancel := func() {}
	if stage.Timeout > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, stage.Timeout)
	}
	defer cancel()

	start := time.Now()
	c.logger.Info("shutdown stage starting", "stage", stage.Name)

	done := make(chan error, 1)
	go func() {
		done <- stage.Func(stageCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-stageCtx.Done():
		err = stageCtx.Err()
		c.logger.Warn("shutdown stage abandoned at deadline, handler still running in background",
			"stage", stage.Name, "timeout", stage.Timeout)
	}
	took := time.Since(start)

	result := StageResult{Name: stage.Name, Err: err, Took: took}
	if err != nil && stageCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
	}
	if err == nil {
		c.logger.Info("shutdown stage completed", "stage", stage.Name, "took", took)
	}
	return result
}
