package lifecycle

import (
	"context"
	"errors"

	"github.com/panjf2000/ants/v2"

	"lifeguard/internal/clock"
	"lifeguard/internal/events"
	"lifeguard/internal/health"
)

// StartHealthMonitoring starts the background health loop. The loop runs
// while the container is RUNNING and no shutdown has been requested. Calling
// it while a loop is already active is a no-op.
func (m *Manager) StartHealthMonitoring(ctx context.Context) {
	m.mu.Lock()
	if m.monitorDone != nil {
		m.mu.Unlock()
		return
	}
	mctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	done := make(chan struct{})
	m.monitorCancel = cancel
	m.monitorDone = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			stop()
			cancel()
			m.mu.Lock()
			if m.monitorDone == done {
				m.monitorDone = nil
				m.monitorCancel = nil
			}
			m.mu.Unlock()
		}()
		m.monitor(mctx)
	}()
}

func (m *Manager) monitor(ctx context.Context) {
	tick := m.cfg.Health.MonitorTick
	interval := m.cfg.Health.CheckInterval
	last := m.clock.Now()

	m.logger.Info("health monitoring started", "interval", interval)
	defer m.logger.Info("health monitoring stopped")

	for !m.shutdown.Load() && m.State() == StateRunning {
		if err := clock.Sleep(ctx, m.clock, tick); err != nil {
			return
		}
		if m.clock.Since(last) < interval {
			continue
		}
		last = m.clock.Now()
		m.runHealthCheck(ctx)
	}
}

// runHealthCheck probes once and updates the consecutive failure count.
// Reaching the failure limit dispatches remediation and resets the count.
func (m *Manager) runHealthCheck(ctx context.Context) {
	if m.prober == nil {
		return
	}
	report := m.prober.ComprehensiveHealthCheck(ctx)
	if ctx.Err() != nil {
		return
	}

	if report.Status == health.StatusHealthy {
		m.mu.Lock()
		prev := m.metrics.HealthCheckFailures
		m.metrics.HealthCheckFailures = 0
		m.mu.Unlock()
		if prev > 0 {
			m.emit(events.HealthCheckPassed, map[string]any{"previous_failures": prev})
		}
		return
	}

	m.mu.Lock()
	m.metrics.HealthCheckFailures++
	failures := m.metrics.HealthCheckFailures
	m.mu.Unlock()

	m.emit(events.HealthCheckFailed, map[string]any{
		"status":               report.Status.String(),
		"consecutive_failures": failures,
	})

	if failures < m.cfg.Health.MaxFailures {
		return
	}

	m.emit(events.FailureDetected, map[string]any{
		"reason":               "health_check_failures",
		"consecutive_failures": failures,
	})
	m.dispatchRemediation(ctx, report)

	m.mu.Lock()
	m.metrics.HealthCheckFailures = 0
	m.mu.Unlock()
}

// dispatchRemediation runs remediation on the single-worker pool so slow
// actions never stall the loop. At most one remediation is in flight.
func (m *Manager) dispatchRemediation(ctx context.Context, report health.Report) {
	if m.remediator == nil {
		m.logger.Warn("no remediator configured, skipping remediation")
		return
	}
	err := m.pool.Submit(func() {
		results := m.remediator.Remediate(ctx, report)
		m.emit(events.RecoveryCompleted, map[string]any{"actions": results})
	})
	switch {
	case err == nil:
		m.logger.Info("remediation dispatched")
	case errors.Is(err, ants.ErrPoolOverload):
		m.logger.Warn("remediation already in progress, skipping")
	default:
		m.logger.Error("failed to dispatch remediation", "error", err)
	}
}
