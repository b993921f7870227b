package lifecycle

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"lifeguard/internal/events"
)

func TestGracefulShutdownWithinTimeout(t *testing.T) {
	m, clk := newTestManager(t, testConfig())
	if err := m.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}

	var order []string
	m.RegisterCleanupHandler("flush", func() error {
		order = append(order, "flush")
		clk.Advance(200 * time.Millisecond)
		return nil
	})
	m.RegisterCleanupHandler("broken", func() error {
		order = append(order, "broken")
		return errors.New("close queue: connection reset")
	})
	m.RegisterCleanupHandler("panicky", func() error {
		order = append(order, "panicky")
		panic("boom")
	})
	m.RegisterCleanupHandler("last", func() error {
		order = append(order, "last")
		return nil
	})

	if !m.GracefulShutdown(context.Background(), 5*time.Second) {
		t.Error("expected graceful shutdown")
	}
	if len(order) != 4 || order[3] != "last" {
		t.Errorf("handlers ran = %v, want all four in order", order)
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", m.State())
	}
	met := m.Metrics()
	if met.GracefulShutdowns != 1 || met.ForcedShutdowns != 0 {
		t.Errorf("metrics = %+v", met)
	}
	if countKind(m, events.ShutdownInitiated) != 1 || countKind(m, events.ShutdownCompleted) != 1 {
		t.Error("expected shutdown_initiated and shutdown_completed events")
	}
}

func TestGracefulShutdownForced(t *testing.T) {
	m, clk := newTestManager(t, testConfig())
	if err := m.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.RegisterCleanupHandler("slow", func() error {
		clk.Advance(3 * time.Second)
		return nil
	})

	if m.GracefulShutdown(context.Background(), time.Second) {
		t.Error("expected forced shutdown")
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", m.State())
	}
	met := m.Metrics()
	if met.ForcedShutdowns != 1 || met.GracefulShutdowns != 0 {
		t.Errorf("metrics = %+v", met)
	}
}

func TestGracefulShutdownAccumulatesUptime(t *testing.T) {
	m, clk := newTestManager(t, testConfig())
	if err := m.Startup(context.Background()); err != nil {
		t.Fatal(err)
	}
	clk.Advance(90 * time.Second)
	if got := m.Metrics().TotalUptimeSeconds; got < 90 {
		t.Errorf("running uptime = %v, want >= 90", got)
	}

	m.GracefulShutdown(context.Background(), time.Second)
	clk.Advance(time.Hour)
	if got := m.Metrics().TotalUptimeSeconds; got < 90 || got > 91 {
		t.Errorf("uptime after stop = %v, want ~90", got)
	}
}

func TestGracefulShutdownFromFailed(t *testing.T) {
	cfg := testConfig()
	cfg.Container.RequiredEnv = []string{"MISSING"}
	m, _ := newTestManager(t, cfg)
	m.Startup(context.Background())
	if m.State() != StateFailed {
		t.Fatalf("state = %s, want FAILED", m.State())
	}

	if !m.GracefulShutdown(context.Background(), time.Second) {
		t.Error("expected graceful shutdown")
	}
	if m.State() != StateStopped {
		t.Errorf("state = %s, want STOPPED", m.State())
	}
}

func TestGracefulShutdownTwice(t *testing.T) {
	m, _ := newTestManager(t, testConfig())
	m.Startup(context.Background())
	m.GracefulShutdown(context.Background(), time.Second)

	if m.GracefulShutdown(context.Background(), time.Second) {
		t.Error("second shutdown should be rejected")
	}
	if m.Metrics().GracefulShutdowns != 1 {
		t.Error("second shutdown should not be counted")
	}
}

func TestRequestShutdown(t *testing.T) {
	m, _ := newTestManager(t, testConfig())
	if m.ShutdownRequested() {
		t.Fatal("shutdown requested before RequestShutdown")
	}
	m.RequestShutdown()
	m.RequestShutdown()

	if !m.ShutdownRequested() {
		t.Error("flag not set")
	}
	select {
	case <-m.Done():
	default:
		t.Error("Done not closed")
	}
}

func TestHandleSignalsRequestsShutdown(t *testing.T) {
	for _, sig := range []syscall.Signal{syscall.SIGTERM, syscall.SIGINT} {
		t.Run(sig.String(), func(t *testing.T) {
			m, _ := newTestManager(t, testConfig())
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			m.HandleSignals(ctx)

			if err := syscall.Kill(os.Getpid(), sig); err != nil {
				t.Fatal(err)
			}

			select {
			case <-m.Done():
			case <-time.After(2 * time.Second):
				t.Fatal("Done not closed after signal")
			}
			if !m.ShutdownRequested() {
				t.Error("shutdown flag not set")
			}
		})
	}
}
