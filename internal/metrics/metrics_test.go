package metrics

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"lifeguard/internal/events"
	"lifeguard/internal/remediation"
)

func TestNewMetricsNoPanic(t *testing.T) {
	// Handler() should return without panic (metrics already registered in init)
	h := Handler()
	if h == nil {
		t.Error("expected non-nil handler")
	}
}

func TestRegisterEventHandlerUpdatesCounters(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	emitter := events.NewEmitter(logger)
	RegisterEventHandler(emitter)

	failedBefore := testutil.ToFloat64(HealthChecksTotal.WithLabelValues("fail"))
	restartsBefore := testutil.ToFloat64(LifecycleEventsTotal.WithLabelValues(string(events.RestartInitiated)))
	diskBefore := testutil.ToFloat64(RemediationActionsTotal.WithLabelValues(string(remediation.ActionDiskCleanup), "error"))

	emitter.Emit(events.Record{Kind: events.HealthCheckFailed, ContainerID: "c1"})
	emitter.Emit(events.Record{Kind: events.HealthCheckFailed, ContainerID: "c1"})
	emitter.Emit(events.Record{Kind: events.RestartInitiated, ContainerID: "c1"})
	emitter.Emit(events.Record{Kind: events.StartupCompleted, ContainerID: "c1"}.WithDuration(1500 * time.Millisecond))
	emitter.Emit(events.Record{Kind: events.RecoveryCompleted, ContainerID: "c1", Details: map[string]any{
		"actions": []remediation.ActionResult{{Action: remediation.ActionDiskCleanup, Error: "permission denied"}},
	}})

	if got := testutil.ToFloat64(HealthChecksTotal.WithLabelValues("fail")) - failedBefore; got != 2 {
		t.Errorf("failed health checks delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(LifecycleEventsTotal.WithLabelValues(string(events.RestartInitiated))) - restartsBefore; got != 1 {
		t.Errorf("restart events delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RemediationActionsTotal.WithLabelValues(string(remediation.ActionDiskCleanup), "error")) - diskBefore; got != 1 {
		t.Errorf("disk cleanup errors delta = %v, want 1", got)
	}
}

func TestSetState(t *testing.T) {
	all := []string{"RUNNING", "STOPPED"}
	SetState("RUNNING", all)
	if v := testutil.ToFloat64(ContainerState.WithLabelValues("RUNNING")); v != 1 {
		t.Errorf("RUNNING = %v, want 1", v)
	}
	SetState("STOPPED", all)
	if v := testutil.ToFloat64(ContainerState.WithLabelValues("RUNNING")); v != 0 {
		t.Errorf("RUNNING = %v, want 0", v)
	}
	if v := testutil.ToFloat64(ContainerState.WithLabelValues("STOPPED")); v != 1 {
		t.Errorf("STOPPED = %v, want 1", v)
	}
}
