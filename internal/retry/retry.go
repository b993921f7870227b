// Package retry polls an operation on a fixed interval until it succeeds or a
// time budget is spent. Waiting goes through a clock.Clock so tests can run
// multi-minute budgets instantly.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"lifeguard/internal/clock"
)

// ErrTimeout is returned by Poll when the budget elapses without success.
var ErrTimeout = errors.New("retry: timed out")

// Func is a single attempt. A nil error means the operation is ready.
type Func func(ctx context.Context) error

// Notify is called after every failed attempt.
type Notify func(attempt int, err error)

// Poll runs fn, sleeping interval between attempts, until fn returns nil or
// timeout has elapsed since the first attempt. The elapsed check happens after
// each failed attempt, so the loop may overshoot timeout by up to one interval.
// It returns the number of attempts made.
func Poll(ctx context.Context, clk clock.Clock, interval, timeout time.Duration, fn Func, notify Notify) (int, error) {
	start := clk.Now()
	attempts := 0

	op := func() error {
		attempts++
		err := safeCall(ctx, fn)
		if err == nil {
			return nil
		}
		if notify != nil {
			notify(attempts, err)
		}
		if clk.Since(start) >= timeout {
			return backoff.Permanent(fmt.Errorf("%w after %d attempts: %w", ErrTimeout, attempts, err))
		}
		return err
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(interval), ctx)
	err := backoff.RetryNotifyWithTimer(op, b, nil, &clockTimer{clock: clk})
	return attempts, err
}

// Attempts runs fn up to n times with interval between attempts and returns
// the last error if every attempt failed.
func Attempts(ctx context.Context, clk clock.Clock, n int, interval time.Duration, fn Func) error {
	if n < 1 {
		n = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), uint64(n-1)), ctx)
	return backoff.RetryNotifyWithTimer(func() error {
		return safeCall(ctx, fn)
	}, b, nil, &clockTimer{clock: clk})
}

// safeCall converts a panic inside fn into an error so one misbehaving probe
// counts as a failed attempt instead of taking the process down.
func safeCall(ctx context.Context, fn Func) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// clockTimer adapts clock.Clock to backoff.Timer.
type clockTimer struct {
	clock clock.Clock
	ch    <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) { t.ch = t.clock.After(d) }
func (t *clockTimer) Stop()                 {}
func (t *clockTimer) C() <-chan time.Time   { return t.ch }
