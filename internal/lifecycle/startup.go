package lifecycle

import (
	"context"
	"fmt"
	"os"
	"strings"

	"lifeguard/internal/dependency"
	"lifeguard/internal/events"
	"lifeguard/internal/health"
)

const mb = 1024 * 1024

// Startup validates the environment, waits for dependencies and runs one
// health check. Any failing step moves the container to FAILED and returns an
// error wrapping ErrValidation, ErrDependencyUnavailable or ErrUnhealthy.
// A shutdown request cuts every step short.
func (m *Manager) Startup(ctx context.Context) error {
	if err := m.transition(StateStarting); err != nil {
		return err
	}

	ctx, release := m.bound(ctx)
	defer release()

	start := m.clock.Now()
	m.mu.Lock()
	m.metrics.StartupCount++
	m.metrics.LastStartupTime = start
	m.mu.Unlock()

	m.emit(events.StartupInitiated, map[string]any{"flow_name": m.flowName})

	if err := m.ValidateEnvironment(ctx); err != nil {
		return m.failStartup("validate_environment", fmt.Errorf("%w: %w", ErrValidation, err))
	}

	if !m.CheckDependencies(ctx) {
		return m.failStartup("check_dependencies", ErrDependencyUnavailable)
	}

	if err := m.initialHealthCheck(ctx); err != nil {
		return m.failStartup("health_check", err)
	}

	if err := m.transition(StateRunning); err != nil {
		return m.failStartup("start", err)
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.metrics.SuccessfulStartups++
	m.runningSince = now
	m.mu.Unlock()

	m.record(events.Record{Kind: events.StartupCompleted}.WithDuration(now.Sub(start)))
	return nil
}

func (m *Manager) failStartup(stage string, err error) error {
	m.mu.Lock()
	m.metrics.FailedStartups++
	m.mu.Unlock()

	m.logger.Error("startup failed", "stage", stage, "error", err)
	m.emit(events.FailureDetected, map[string]any{"stage": stage, "error": err.Error()})
	if terr := m.transition(StateFailed); terr != nil {
		m.logger.Warn("could not mark container failed", "error", terr)
	}
	return err
}

// ValidateEnvironment checks required environment variables, flow-name
// consistency, config loadability, required directories and free disk space.
func (m *Manager) ValidateEnvironment(ctx context.Context) error {
	c := m.cfg.Container

	var missing []string
	for _, name := range c.RequiredEnv {
		if v, ok := m.lookupEnv(name); !ok || v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if env, ok := m.lookupEnv("CONTAINER_FLOW_NAME"); ok && env != "" && c.FlowName != "" && env != c.FlowName {
		return fmt.Errorf("flow name mismatch: CONTAINER_FLOW_NAME=%q, configured %q", env, c.FlowName)
	}

	if m.loadConfig != nil {
		if err := m.loadConfig(); err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	for _, dir := range c.Directories {
		if err := ensureWritableDir(dir); err != nil {
			return err
		}
	}

	if c.DiskPath != "" {
		free, err := m.diskFree(ctx, c.DiskPath)
		if err != nil {
			return fmt.Errorf("check free disk space: %w", err)
		}
		freeMB := free / mb
		if freeMB < c.MinFreeDiskMB {
			return fmt.Errorf("insufficient disk space on %s: %d MB free, need %d MB", c.DiskPath, freeMB, c.MinFreeDiskMB)
		}
		if freeMB < c.WarnFreeDiskMB {
			m.logger.Warn("low disk space", "path", c.DiskPath, "free_mb", freeMB, "warn_mb", c.WarnFreeDiskMB)
		}
	}

	m.logger.Info("environment validated")
	return nil
}

// ensureWritableDir creates dir if absent and verifies a file can be
// created in it.
func ensureWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, ".lifeguard-write-check-*")
	if err != nil {
		return fmt.Errorf("directory %s not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// CheckDependencies waits on every registered check, or on the default set
// when none are registered. It returns false if a required check never
// becomes ready.
func (m *Manager) CheckDependencies(ctx context.Context) bool {
	m.mu.Lock()
	checks := append([]dependency.Check(nil), m.checks...)
	m.mu.Unlock()

	if len(checks) == 0 && m.deps != nil {
		checks = m.deps.DefaultDependencyChecks()
	}

	start := m.clock.Now()
	ok, results := dependency.CheckAll(ctx, checks, m.clock, m.logger)

	m.mu.Lock()
	m.depResults = results
	m.mu.Unlock()

	if !ok {
		return false
	}
	m.record(events.Record{
		Kind:    events.DependenciesReady,
		Details: map[string]any{"checks": len(checks)},
	}.WithDuration(m.clock.Since(start)))
	return true
}

func (m *Manager) initialHealthCheck(ctx context.Context) error {
	if m.prober == nil {
		return nil
	}
	if in, ok := m.prober.(initializer); ok {
		if err := in.Init(ctx); err != nil {
			return fmt.Errorf("%w: %w", ErrUnhealthy, err)
		}
	}

	report := m.prober.ComprehensiveHealthCheck(ctx)
	switch report.Status {
	case health.StatusUnhealthy:
		return fmt.Errorf("%w: initial health check reported %s", ErrUnhealthy, report.Status)
	case health.StatusDegraded:
		m.logger.Warn("initial health check degraded, continuing")
	}
	return nil
}
