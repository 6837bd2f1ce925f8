// Package housekeeping schedules the framework's periodic maintenance
// jobs — idle Channel eviction and stats-log emission — on cron
// expressions, using the same robfig/cron parser configuration the
// teacher's scheduler uses.
package housekeeping

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/loquat-fw/loquat/internal/channel"
)

// Stats is the subset of engine.Stats the periodic stats-log job reports.
type Stats struct {
	Processed uint64
	Failed    uint64
}

// StatsFunc supplies a fresh Stats snapshot on demand, typically
// engine.Engine.StatsSnapshot adapted to this shape.
type StatsFunc func() Stats

// Runner wraps a robfig/cron Scheduler configured with second-resolution
// parsing and installs the channel-eviction sweep and stats-log jobs on it.
type Runner struct {
	cronScheduler *cron.Cron
	logger        *slog.Logger

	channels *channel.Manager
	idleTTL  time.Duration
	entryIDs []cron.EntryID
}

// NewRunner constructs a Runner. channels and idleTTL drive the eviction
// sweep; logger is used for both the sweep's own diagnostics and the
// periodic stats emission.
func NewRunner(channels *channel.Manager, idleTTL time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronScheduler := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Runner{
		cronScheduler: cronScheduler,
		logger:        logger.With("component", "Housekeeping"),
		channels:      channels,
		idleTTL:       idleTTL,
	}
}

// ScheduleEviction installs the idle-Channel eviction sweep on the given
// cron expression.
func (r *Runner) ScheduleEviction(expr string) error {
	id, err := r.cronScheduler.AddFunc(expr, r.runEviction)
	if err != nil {
		return err
	}
	r.entryIDs = append(r.entryIDs, id)
	return nil
}

// ScheduleStatsLog installs the periodic stats-log job, reading counters
// via statsFn, on the given cron expression.
func (r *Runner) ScheduleStatsLog(expr string, statsFn StatsFunc) error {
	id, err := r.cronScheduler.AddFunc(expr, func() { r.runStatsLog(statsFn) })
	if err != nil {
		return err
	}
	r.entryIDs = append(r.entryIDs, id)
	return nil
}

func (r *Runner) runEviction() {
	evicted := r.channels.EvictIdle(r.idleTTL)
	if evicted > 0 {
		r.logger.Info("evicted idle channels", "count", evicted, "ttl", r.idleTTL)
	}
}

func (r *Runner) runStatsLog(statsFn StatsFunc) {
	s := statsFn()
	r.logger.Info("pipeline stats", "processed", s.Processed, "failed", s.Failed, "channels", r.channels.Count())
}

// Start starts the underlying cron scheduler in its own goroutine.
func (r *Runner) Start() { r.cronScheduler.Start() }

// Stop stops the underlying cron scheduler, waiting for any running job to
// finish.
func (r *Runner) Stop() { <-r.cronScheduler.Stop().Done() }
