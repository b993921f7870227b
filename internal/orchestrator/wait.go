package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"lifeguard/internal/config"
	"lifeguard/internal/dependency"
	"lifeguard/internal/health"
	"lifeguard/internal/retry"
)

var errNotHealthy = errors.New("not healthy")

// WaitForDatabase polls the named database until it reports healthy or
// timeout elapses. Degraded keeps waiting. An unknown name is returned as an
// error wrapping database.ErrUnknownDatabase and is never retried.
func (o *Orchestrator) WaitForDatabase(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	db, err := o.dbs.Get(name)
	if err != nil {
		return false, fmt.Errorf("wait for database: %w", err)
	}

	o.logger.Info("waiting for database", "database", name, "timeout", timeout)
	attempts, err := retry.Poll(ctx, o.clock, o.pollInterval, timeout, func(ctx context.Context) error {
		hs := o.probeDatabase(ctx, db)
		o.cache.Set(name, hs)
		if hs.Status != health.StatusHealthy {
			return fmt.Errorf("%w: %s", errNotHealthy, hs.Message)
		}
		return nil
	}, func(attempt int, err error) {
		o.logger.Debug("database not ready", "database", name, "attempt", attempt, "error", err)
	})
	if err != nil {
		o.logger.Warn("database did not become healthy", "database", name, "attempts", attempts, "error", err)
		return false, nil
	}
	o.logger.Info("database ready", "database", name, "attempts", attempts)
	return true, nil
}

// WaitForService polls an HTTP health endpoint until it returns 200 or
// timeout elapses. Transport errors are retried.
func (o *Orchestrator) WaitForService(ctx context.Context, endpoint string, timeout time.Duration) bool {
	o.logger.Info("waiting for service", "endpoint", endpoint, "timeout", timeout)
	attempts, err := retry.Poll(ctx, o.clock, o.pollInterval, timeout, func(ctx context.Context) error {
		res, err := o.getEndpoint(ctx, endpoint, timeout)
		if err != nil {
			return err
		}
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned status %d", res.StatusCode)
		}
		if res.Ready {
			o.logger.Info("service reports ready", "endpoint", endpoint)
		}
		return nil
	}, func(attempt int, err error) {
		o.logger.Debug("service not ready", "endpoint", endpoint, "attempt", attempt, "error", err)
	})
	if err != nil {
		o.logger.Warn("service did not become healthy", "endpoint", endpoint, "attempts", attempts, "error", err)
		return false
	}
	return true
}

// WaitForAllDependencies waits on every database, then the orchestration
// server, then every service, sharing one time budget. A required failure
// stops the walk; optional failures are logged.
func (o *Orchestrator) WaitForAllDependencies(ctx context.Context, timeout time.Duration) bool {
	start := o.clock.Now()
	remaining := func() time.Duration { return timeout - o.clock.Since(start) }

	for _, dbc := range o.databases {
		ok, err := o.WaitForDatabase(ctx, dbc.Name, remaining())
		if err != nil {
			o.logger.Error("database wait failed", "database", dbc.Name, "error", err)
			return false
		}
		if !ok {
			if dbc.IsRequired() {
				o.logger.Error("required database unavailable", "database", dbc.Name)
				return false
			}
			o.logger.Warn("optional database unavailable, continuing", "database", dbc.Name)
		}
	}

	if endpoint := o.server.HealthEndpoint(); endpoint != "" {
		if !o.WaitForService(ctx, endpoint, remaining()) {
			if o.server.Required {
				o.logger.Error("orchestration server unavailable", "endpoint", endpoint)
				return false
			}
			o.logger.Warn("orchestration server unavailable, continuing", "endpoint", endpoint)
		}
	}

	for _, svc := range o.services {
		if !o.WaitForService(ctx, svc.HealthEndpoint, remaining()) {
			if svc.Required {
				o.logger.Error("required service unavailable", "service", svc.Name)
				return false
			}
			o.logger.Warn("optional service unavailable, continuing", "service", svc.Name)
		}
	}

	o.logger.Info("all dependencies ready", "elapsed", o.clock.Since(start))
	return true
}

// DefaultDependencyChecks returns one required readiness check per configured
// database (honouring its required flag) and a non-required check for the
// orchestration server.
func (o *Orchestrator) DefaultDependencyChecks() []dependency.Check {
	var checks []dependency.Check
	for _, dbc := range o.databases {
		name := dbc.Name
		checks = append(checks, dependency.Check{
			Name: name,
			Probe: func(ctx context.Context) bool {
				db, err := o.dbs.Get(name)
				if err != nil {
					return false
				}
				hs := o.probeDatabase(ctx, db)
				o.cache.Set(name, hs)
				return hs.Healthy()
			},
			Timeout:       dbc.Timeout,
			RetryInterval: o.pollInterval,
			Required:      dbc.IsRequired(),
			Description:   fmt.Sprintf("%s database reachability", dbc.Type),
		})
	}

	if endpoint := o.server.HealthEndpoint(); endpoint != "" {
		checks = append(checks, dependency.Check{
			Name: config.ServerEntityName,
			Probe: func(ctx context.Context) bool {
				res, err := o.getEndpoint(ctx, endpoint, o.server.Timeout)
				return err == nil && res.StatusCode == http.StatusOK
			},
			Timeout:       o.server.Timeout,
			RetryInterval: o.pollInterval,
			Required:      false,
			Description:   "orchestration server health endpoint",
		})
	}
	return checks
}
