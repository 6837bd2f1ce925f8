// Package engine implements the Engine: the component that coordinates the
// Router, ChannelManager, and Stream, and owns the pipeline's lifecycle
// state and statistics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/loquat-fw/loquat/internal/channel"
	"github.com/loquat-fw/loquat/internal/model"
	"github.com/loquat-fw/loquat/internal/router"
	"github.com/loquat-fw/loquat/internal/stream"
)

// Status is the Engine's lifecycle state, represented as a small atomic
// integer so it can be probed without taking a lock.
type Status int32

const (
	StatusStopped Status = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "Stopped"
	case StatusStarting:
		return "Starting"
	case StatusRunning:
		return "Running"
	case StatusStopping:
		return "Stopping"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// ErrNotRunning is returned by Process when the Engine's status is not
// Running, failing fast rather than blocking or draining.
var ErrNotRunning = errors.New("engine: not running")

// ErrIllegalTransition is returned by start/stop when the current status
// does not permit the requested transition.
var ErrIllegalTransition = errors.New("engine: illegal status transition")

// Stats is a point-in-time snapshot of the Engine's counters.
type Stats struct {
	Processed     uint64
	Failed        uint64
	LastLatencyMs int64
	StartedAt     time.Time
}

// Engine coordinates the Router, ChannelManager, and Stream, and tracks
// lifecycle state and processing statistics.
type Engine struct {
	status atomic.Int32

	router   *router.Router
	channels *channel.Manager
	stream   *stream.Stream
	logger   *slog.Logger

	processed     atomic.Uint64
	failed        atomic.Uint64
	lastLatencyMs atomic.Int64
	startedAt     atomic.Int64 // UnixNano; 0 when never started
}

// New constructs a Stopped Engine wired to the given collaborators.
func New(r *router.Router, cm *channel.Manager, s *stream.Stream, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		router:   r,
		channels: cm,
		stream:   s,
		logger:   logger.With("component", "Engine"),
	}
}

// Status returns the current lifecycle status.
func (e *Engine) Status() Status {
	return Status(e.status.Load())
}

// IsRunning is a pure atomic load with no locking and no suspension.
func (e *Engine) IsRunning() bool {
	return e.Status() == StatusRunning
}

// Start transitions Stopped -> Starting -> Running. warmup runs subsystem
// warm-up while the Engine is in Starting; a warmup failure transitions the
// Engine to Error and is returned to the caller.
func (e *Engine) Start(ctx context.Context, warmup func(context.Context) error) error {
	if !e.status.CompareAndSwap(int32(StatusStopped), int32(StatusStarting)) {
		return fmt.Errorf("%w: from %s", ErrIllegalTransition, e.Status())
	}

	if warmup != nil {
		if err := warmup(ctx); err != nil {
			e.status.Store(int32(StatusError))
			e.logger.Error("engine warm-up failed", "error", err)
			return fmt.Errorf("engine warm-up: %w", err)
		}
	}

	e.startedAt.Store(time.Now().UnixNano())
	if !e.status.CompareAndSwap(int32(StatusStarting), int32(StatusRunning)) {
		e.status.Store(int32(StatusError))
		return fmt.Errorf("%w: concurrent status change during start", ErrIllegalTransition)
	}
	e.logger.Info("engine started")
	return nil
}

// Stop transitions Running -> Stopping -> Stopped. It is idempotent when
// the Engine is already Stopped.
func (e *Engine) Stop(ctx context.Context, drain func(context.Context) error) error {
	if e.Status() == StatusStopped {
		return nil
	}
	if !e.status.CompareAndSwap(int32(StatusRunning), int32(StatusStopping)) {
		return fmt.Errorf("%w: from %s", ErrIllegalTransition, e.Status())
	}

	if drain != nil {
		if err := drain(ctx); err != nil {
			e.logger.Error("engine drain failed", "error", err)
		}
	}

	e.status.Store(int32(StatusStopped))
	e.logger.Info("engine stopped")
	return nil
}

// Process routes, resolves channel state for, and runs pkg through the
// Stream. It is rejected with ErrNotRunning unless the Engine's status is
// Running; rejection does not change engine status. Both success and
// failure paths record latency and increment counters.
func (e *Engine) Process(ctx context.Context, pkg *model.Package) ([]*model.Package, error) {
	if !e.IsRunning() {
		return nil, ErrNotRunning
	}

	start := time.Now()
	out, err := e.process(ctx, pkg)
	latency := time.Since(start)
	e.lastLatencyMs.Store(latency.Milliseconds())

	if err != nil {
		e.failed.Add(1)
		e.logger.Error("package processing failed", "package_id", pkg.ID.String(), "error", err)
		return nil, err
	}
	e.processed.Add(1)
	return out, nil
}

func (e *Engine) process(ctx context.Context, pkg *model.Package) ([]*model.Package, error) {
	decision, err := e.router.Route(pkg)
	if err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}

	ch, err := e.channels.Get(decision.ChannelKey)
	if err != nil {
		return nil, fmt.Errorf("resolving channel: %w", err)
	}
	ch.Touch()

	return e.stream.Run(ctx, pkg)
}

// StatsSnapshot returns a point-in-time copy of the Engine's counters.
func (e *Engine) StatsSnapshot() Stats {
	var startedAt time.Time
	if ns := e.startedAt.Load(); ns != 0 {
		startedAt = time.Unix(0, ns)
	}
	return Stats{
		Processed:     e.processed.Load(),
		Failed:        e.failed.Load(),
		LastLatencyMs: e.lastLatencyMs.Load(),
		StartedAt:     startedAt,
	}
}
