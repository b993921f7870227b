// Package dependency defines named readiness probes that must pass before a
// container is allowed to serve.
package dependency

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"lifeguard/internal/clock"
	"lifeguard/internal/retry"
)

var errProbeFalse = errors.New("probe reported not ready")

// Probe reports whether a dependency is ready.
type Probe func(ctx context.Context) bool

// Check is a named, retryable readiness probe.
type Check struct {
	Name          string
	Probe         Probe
	Timeout       time.Duration
	RetryInterval time.Duration
	Required      bool
	Description   string
}

// Result is the outcome of waiting on one Check.
type Result struct {
	Name     string        `json:"name"`
	Required bool          `json:"required"`
	Ready    bool          `json:"ready"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Wait polls the probe every RetryInterval until it reports ready or Timeout
// elapses. Panics inside the probe count as failed attempts.
func (c Check) Wait(ctx context.Context, clk clock.Clock, logger *slog.Logger) Result {
	start := clk.Now()
	attempts, err := retry.Poll(ctx, clk, c.RetryInterval, c.Timeout, func(ctx context.Context) error {
		if c.Probe(ctx) {
			return nil
		}
		return errProbeFalse
	}, func(attempt int, err error) {
		logger.Debug("dependency not ready", "dependency", c.Name, "attempt", attempt, "error", err)
	})
	return Result{
		Name:     c.Name,
		Required: c.Required,
		Ready:    err == nil,
		Attempts: attempts,
		Elapsed:  clk.Since(start),
	}
}

// CheckAll waits on each check in order. A required check that never becomes
// ready aborts the walk and CheckAll returns false; optional failures are
// logged and skipped.
func CheckAll(ctx context.Context, checks []Check, clk clock.Clock, logger *slog.Logger) (bool, []Result) {
	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		logger.Info("checking dependency", "dependency", c.Name, "required", c.Required, "timeout", c.Timeout)
		res := c.Wait(ctx, clk, logger)
		results = append(results, res)

		if res.Ready {
			logger.Info("dependency ready", "dependency", c.Name, "attempts", res.Attempts, "elapsed", res.Elapsed)
			continue
		}
		if c.Required {
			logger.Error("required dependency unavailable", "dependency", c.Name, "attempts", res.Attempts, "timeout", c.Timeout)
			return false, results
		}
		logger.Warn("optional dependency unavailable, continuing", "dependency", c.Name, "attempts", res.Attempts)
	}
	return true, results
}
