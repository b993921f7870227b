package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"lifeguard/internal/clock"
)

var errNotReady = errors.New("not ready")

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPollSucceedsOnThirdAttempt(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	attempts, err := Poll(context.Background(), clk, 2*time.Second, time.Minute, func(context.Context) error {
		calls++
		if calls < 3 {
			return errNotReady
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if got := clk.Since(time.Unix(0, 0)); got != 4*time.Second {
		t.Errorf("elapsed = %v, want 4s", got)
	}
}

func TestPollTimesOut(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	var notified int
	attempts, err := Poll(context.Background(), clk, 2*time.Second, 10*time.Second, func(context.Context) error {
		return errNotReady
	}, func(int, error) { notified++ })
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if !errors.Is(err, errNotReady) {
		t.Errorf("err should wrap last attempt error: %v", err)
	}
	// attempts at t=0,2,4,6,8,10
	if attempts != 6 {
		t.Errorf("attempts = %d, want 6", attempts)
	}
	if notified != attempts {
		t.Errorf("notified = %d, want %d", notified, attempts)
	}
}

func TestPollRecoversPanic(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	_, err := Poll(context.Background(), clk, time.Second, 5*time.Second, func(context.Context) error {
		calls++
		if calls == 1 {
			panic("boom")
		}
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("panic should be treated as a failed attempt, got %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestPollContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Poll(ctx, clock.Real{}, time.Hour, time.Hour, func(context.Context) error {
		calls++
		cancel()
		return errNotReady
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestAttemptsExhausted(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	err := Attempts(context.Background(), clk, 3, time.Second, func(context.Context) error {
		calls++
		return errNotReady
	})
	if !errors.Is(err, errNotReady) {
		t.Errorf("err = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}
