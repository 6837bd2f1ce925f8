// Package errutil supplies the three disciplined error-handling helpers
// used throughout the framework's ambient stack: log-and-continue for
// per-item scan failures, log-and-surface for operations a caller must
// react to, and retry-with-backoff for transient I/O.
package errutil

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// LogAndContinue logs err at Warn level with the given message and
// attributes and returns nothing further, for use in scan loops where one
// item's failure must never abort the rest (artifact discovery, directory
// walks, per-target hot-reload attempts).
func LogAndContinue(logger *slog.Logger, msg string, err error, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn(msg, append(attrs, "error", err)...)
}

// LogAndSurface logs err at Error level and wraps it with msg so the
// caller can still act on it, for operations whose failure the caller
// must be able to observe and react to (Engine transitions, Adapter
// lifecycle calls).
func LogAndSurface(logger *slog.Logger, msg string, err error, attrs ...any) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error(msg, append(attrs, "error", err)...)
	return fmt.Errorf("%s: %w", msg, err)
}

// RetryConfig controls RetryWithBackoff's attempt count and backoff
// schedule.
type RetryConfig struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the base linear backoff: attempt N waits Backoff*N
	// before retrying.
	Backoff time.Duration
}

// RetryWithBackoff calls fn up to cfg.Attempts times, waiting
// cfg.Backoff*attempt between tries, and returns the last error if every
// attempt fails. It returns ctx.Err() immediately if ctx is cancelled
// while waiting between attempts.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}
