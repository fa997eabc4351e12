package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// WithTimeout runs fn with a derived context cancelled after timeout,
// logging a warning if fn does not return in time. Used around individual
// Pulsar Send calls so a single hung network write cannot stall the
// publisher's whole publish loop past the operator's patience for one
// message. If fn does not complete in time, context.DeadlineExceeded is
// returned.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		slog.Default().With("component", "timeout").Warn("operation exceeded deadline", "operation", name, "limit", timeout)
		return fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}
