package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines run, a sign
// of leaked notification or callback workers.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", n, threshold)
		}
		return nil
	}
}

// Pinger is implemented by pgxpool.Pool and redis clients (through an
// adapter).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck fails when p cannot be reached.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// QueueDepthCheck fails when depth reports more than limit queued items.
func QueueDepthCheck(depth func() int, limit int) CheckFunc {
	return func(context.Context) error {
		if n := depth(); n > limit {
			return errors.Errorf("queue depth %d exceeds %d", n, limit)
		}
		return nil
	}
}
