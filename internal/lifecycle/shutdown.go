package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lifeguard/internal/events"
)

// RequestShutdown sets the shutdown flag and cancels the shared context.
// Safe to call from any goroutine.
func (m *Manager) RequestShutdown() {
	if m.shutdown.CompareAndSwap(false, true) {
		m.logger.Info("shutdown requested")
	}
	m.cancel()
}

// ShutdownRequested reports whether a shutdown has been requested.
func (m *Manager) ShutdownRequested() bool { return m.shutdown.Load() }

// Done is closed once a shutdown has been requested.
func (m *Manager) Done() <-chan struct{} { return m.ctx.Done() }

// HandleSignals requests shutdown on SIGTERM or SIGINT until ctx ends.
func (m *Manager) HandleSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			m.logger.Info("received signal", "signal", sig.String())
			m.RequestShutdown()
		case <-ctx.Done():
		}
	}()
}

// GracefulShutdown stops monitoring, runs every cleanup handler in order and
// performs a final health check. It returns true when all of that finished
// within timeout. The timeout only classifies the shutdown; handlers are
// never interrupted. The container ends STOPPED either way.
func (m *Manager) GracefulShutdown(ctx context.Context, timeout time.Duration) bool {
	start := m.clock.Now()
	m.shutdown.Store(true)

	from := m.State()
	if err := m.transition(StateStopping); err != nil {
		m.logger.Warn("shutdown not possible from current state", "state", from)
		return false
	}
	m.emit(events.ShutdownInitiated, map[string]any{"timeout": timeout.String(), "from_state": string(from)})

	m.mu.Lock()
	cancel := m.monitorCancel
	done := m.monitorDone
	handlers := append([]cleanupHandler(nil), m.cleanup...)
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	for _, h := range handlers {
		if err := runCleanup(h); err != nil {
			m.logger.Error("cleanup handler failed", "handler", h.name, "error", err)
			continue
		}
		m.logger.Info("cleanup handler completed", "handler", h.name)
	}

	if done != nil {
		<-done
	}

	if m.prober != nil {
		report := m.prober.ComprehensiveHealthCheck(ctx)
		m.logger.Info("final health check", "status", report.Status)
	}

	now := m.clock.Now()
	elapsed := now.Sub(start)
	graceful := elapsed <= timeout

	m.mu.Lock()
	if !m.runningSince.IsZero() {
		m.uptime += now.Sub(m.runningSince)
		m.runningSince = time.Time{}
	}
	if graceful {
		m.metrics.GracefulShutdowns++
	} else {
		m.metrics.ForcedShutdowns++
	}
	m.metrics.LastShutdownTime = now
	m.mu.Unlock()

	if !graceful {
		m.logger.Warn("shutdown exceeded timeout", "elapsed", elapsed, "timeout", timeout)
	}

	if err := m.transition(StateStopped); err != nil {
		m.logger.Error("could not mark container stopped", "error", err)
	}
	m.record(events.Record{
		Kind:    events.ShutdownCompleted,
		Details: map[string]any{"graceful": graceful},
	}.WithDuration(elapsed))
	return graceful
}

// runCleanup calls the handler, turning a panic into an error.
func runCleanup(h cleanupHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup handler panicked: %v", r)
		}
	}()
	return h.fn()
}
