package lifecycle

import (
	"context"
	"testing"
	"time"

	"lifeguard/internal/clock"
	"lifeguard/internal/events"
	"lifeguard/internal/health"
)

// startMonitored starts a manager on the real clock with a fast monitor loop.
func startMonitored(t *testing.T, prober *fakeProber, opts ...Option) *Manager {
	t.Helper()
	cfg := testConfig()
	cfg.Health.MonitorTick = 5 * time.Millisecond
	cfg.Health.CheckInterval = 10 * time.Millisecond

	opts = append([]Option{WithClock(clock.Real{}), WithProber(prober)}, opts...)
	m, _ := newTestManager(t, cfg, opts...)
	if err := m.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.StartHealthMonitoring(context.Background())
	return m
}

func TestMonitorRemediatesAfterMaxFailures(t *testing.T) {
	prober := &fakeProber{statuses: []health.Status{health.StatusHealthy, health.StatusUnhealthy}}
	rem := &fakeRemediator{}
	m := startMonitored(t, prober, WithRemediator(rem))

	waitFor(t, 2*time.Second, "recovery_completed", func() bool {
		return countKind(m, events.RecoveryCompleted) >= 1
	})

	if rem.Calls() < 1 {
		t.Error("remediator not called")
	}
	if countKind(m, events.FailureDetected) < 1 {
		t.Error("expected failure_detected event")
	}
	if countKind(m, events.HealthCheckFailed) < 3 {
		t.Errorf("health_check_failed events = %d, want >= 3", countKind(m, events.HealthCheckFailed))
	}

	if !m.GracefulShutdown(context.Background(), 5*time.Second) {
		t.Error("expected graceful shutdown")
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", m.State())
	}
}

func TestMonitorResetsFailuresOnHealthy(t *testing.T) {
	prober := &fakeProber{statuses: []health.Status{
		health.StatusHealthy,
		health.StatusDegraded,
		health.StatusUnhealthy,
		health.StatusHealthy,
	}}
	rem := &fakeRemediator{}
	m := startMonitored(t, prober, WithRemediator(rem))

	waitFor(t, 2*time.Second, "health_check_passed", func() bool {
		return countKind(m, events.HealthCheckPassed) >= 1
	})
	// a few more healthy rounds
	waitFor(t, 2*time.Second, "more probes", func() bool { return prober.Calls() >= 7 })

	if got := m.Metrics().HealthCheckFailures; got != 0 {
		t.Errorf("health check failures = %d, want 0", got)
	}
	if countKind(m, events.HealthCheckFailed) != 2 {
		t.Errorf("health_check_failed events = %d, want 2", countKind(m, events.HealthCheckFailed))
	}
	if countKind(m, events.FailureDetected) != 0 || rem.Calls() != 0 {
		t.Error("remediation should not trigger below the failure limit")
	}

	m.GracefulShutdown(context.Background(), 5*time.Second)
}

func TestMonitorStopsOnRequestShutdown(t *testing.T) {
	prober := &fakeProber{statuses: []health.Status{health.StatusHealthy}}
	m := startMonitored(t, prober)

	waitFor(t, 2*time.Second, "first probe", func() bool { return prober.Calls() >= 2 })
	m.RequestShutdown()

	waitFor(t, 2*time.Second, "monitor exit", func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.monitorDone == nil
	})

	calls := prober.Calls()
	time.Sleep(50 * time.Millisecond)
	if prober.Calls() != calls {
		t.Error("prober called after monitor stopped")
	}
}

func TestStartHealthMonitoringIdempotent(t *testing.T) {
	prober := &fakeProber{statuses: []health.Status{health.StatusHealthy}}
	m := startMonitored(t, prober)

	m.mu.Lock()
	first := m.monitorDone
	m.mu.Unlock()

	m.StartHealthMonitoring(context.Background())

	m.mu.Lock()
	second := m.monitorDone
	m.mu.Unlock()
	if first != second {
		t.Error("second StartHealthMonitoring started another loop")
	}
	m.GracefulShutdown(context.Background(), time.Second)
}
