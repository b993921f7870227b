package dependency

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"lifeguard/internal/clock"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestCheckAllRequiredSucceedsDespiteOptionalFailure(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))

	dbPolls := 0
	cachePolls := 0
	apiPolls := 0
	checks := []Check{
		{
			Name: "db", Required: true, Timeout: 30 * time.Second, RetryInterval: time.Second,
			Probe: func(context.Context) bool { dbPolls++; return dbPolls >= 3 },
		},
		{
			Name: "cache", Required: false, Timeout: 10 * time.Second, RetryInterval: time.Second,
			Probe: func(context.Context) bool { cachePolls++; return false },
		},
		{
			Name: "api", Required: true, Timeout: 30 * time.Second, RetryInterval: time.Second,
			Probe: func(context.Context) bool { apiPolls++; return true },
		},
	}

	ok, results := CheckAll(context.Background(), checks, clk, quietLogger())
	if !ok {
		t.Fatal("expected dependencies to be ready")
	}
	if dbPolls != 3 {
		t.Errorf("db polled %d times, want 3", dbPolls)
	}
	if cachePolls < 2 {
		t.Errorf("cache should be retried until timeout, polled %d", cachePolls)
	}
	if apiPolls != 1 {
		t.Errorf("api polled %d times, want 1", apiPolls)
	}
	if len(results) != 3 || results[1].Ready {
		t.Errorf("unexpected results: %+v", results)
	}
}

func TestCheckAllRequiredFailureAborts(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	laterCalled := false
	checks := []Check{
		{Name: "db", Required: true, Timeout: 5 * time.Second, RetryInterval: time.Second,
			Probe: func(context.Context) bool { return false }},
		{Name: "api", Required: true, Timeout: 5 * time.Second, RetryInterval: time.Second,
			Probe: func(context.Context) bool { laterCalled = true; return true }},
	}
	ok, results := CheckAll(context.Background(), checks, clk, quietLogger())
	if ok {
		t.Fatal("expected failure")
	}
	if laterCalled {
		t.Error("checks after a required failure should not run")
	}
	if len(results) != 1 {
		t.Errorf("results = %d, want 1", len(results))
	}
}

func TestWaitProbePanicIsRetried(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	calls := 0
	c := Check{Name: "flaky", Timeout: 10 * time.Second, RetryInterval: time.Second,
		Probe: func(context.Context) bool {
			calls++
			if calls == 1 {
				panic("driver exploded")
			}
			return true
		}}
	res := c.Wait(context.Background(), clk, quietLogger())
	if !res.Ready || res.Attempts != 2 {
		t.Errorf("res = %+v, want ready after 2 attempts", res)
	}
}
