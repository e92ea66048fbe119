package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Result carries the outcome of a retried operation, including how many
// attempts were spent.
type Result[T any] struct {
	Success  bool
	Data     T
	Err      error
	Attempts int
}

// Retry runs op up to maxAttempts times with exponential backoff
// (baseDelay * 2^(attempt-1) between attempts). The final error is preserved,
// never swallowed. Caller cancellation is honored between backoff waits.
func Retry[T any](ctx context.Context, op func(context.Context) (T, error), maxAttempts int, baseDelay time.Duration, label string) Result[T] {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var res Result[T]
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		res.Attempts = attempt

		data, err := op(ctx)
		if err == nil {
			res.Success = true
			res.Data = data
			res.Err = nil
			return res
		}
		res.Err = err

		if attempt == maxAttempts {
			break
		}

		delay := baseDelay << (attempt - 1)
		slog.Debug("retrying operation", "label", label, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			res.Err = fmt.Errorf("%w (last error: %v)", ctx.Err(), res.Err)
			return res
		}
	}
	return res
}
