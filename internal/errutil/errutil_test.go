package errutil

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, nil))
}

func TestLogAndContinue_LogsWithoutReturning(t *testing.T) {
	var buf bytes.Buffer
	LogAndContinue(newTestLogger(&buf), "scan item failed", assert.AnError, "path", "/tmp/x")
	assert.Contains(t, buf.String(), "scan item failed")
	assert.Contains(t, buf.String(), "/tmp/x")
}

func TestLogAndSurface_LogsAndWraps(t *testing.T) {
	var buf bytes.Buffer
	err := LogAndSurface(newTestLogger(&buf), "initialize failed", assert.AnError, "name", "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initialize failed")
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, buf.String(), "a1")
}

func TestRetryWithBackoff_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), RetryConfig{Attempts: 3, Backoff: time.Millisecond}, func() error {
		calls++
		if calls < 3 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_ExhaustsAndReturnsLastError(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), RetryConfig{Attempts: 2, Backoff: time.Millisecond}, func() error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 2, calls)
}

func TestRetryWithBackoff_RespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithBackoff(ctx, RetryConfig{Attempts: 3, Backoff: 10 * time.Millisecond}, func() error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "first attempt still runs before the cancellation check")
}
