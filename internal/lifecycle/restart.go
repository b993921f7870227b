package lifecycle

import (
	"context"
	"fmt"
	"time"

	"lifeguard/internal/clock"
	"lifeguard/internal/events"
)

// ShouldRestart applies the restart policy to the current state.
func (m *Manager) ShouldRestart() bool {
	return m.restart.Policy.ShouldRestart(exit(m.State()))
}

// CalculateRestartDelay returns the delay before the next restart for the
// current restart count.
func (m *Manager) CalculateRestartDelay() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restart.Backoff(m.restartCount)
}

// RestartCount returns the restart count within the current window.
func (m *Manager) RestartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restartCount
}

// AttemptRestart waits the backoff delay and runs Startup again. It returns
// ErrRestartLimit without changing anything once MaxAttempts restarts have
// been counted in the current window. The wait is cut short if ctx ends or a
// shutdown is requested, and the restart is abandoned if the state changed
// while waiting.
func (m *Manager) AttemptRestart(ctx context.Context) error {
	if m.ctx.Err() != nil {
		return fmt.Errorf("restart aborted: %w", ErrShutdownRequested)
	}

	m.mu.Lock()
	if m.restartCount >= m.restart.MaxAttempts {
		count := m.restartCount
		m.mu.Unlock()
		m.logger.Error("restart limit reached", "restart_count", count, "max_attempts", m.restart.MaxAttempts)
		return fmt.Errorf("%w: %d of %d", ErrRestartLimit, count, m.restart.MaxAttempts)
	}
	from := m.state
	if !CanTransition(from, StateRestarting) {
		m.mu.Unlock()
		return transitionError(from, StateRestarting)
	}

	now := m.clock.Now()
	m.restartCount = m.restart.NextCount(m.restartCount, m.lastRestart, now)
	m.lastRestart = now
	m.metrics.RestartCount++
	count := m.restartCount
	delay := m.restart.Backoff(count)
	m.mu.Unlock()

	m.emit(events.RestartInitiated, map[string]any{"attempt": count, "delay": delay.String()})
	m.logger.Info("restarting container", "attempt", count, "delay", delay)

	sleepCtx, release := m.bound(ctx)
	err := clock.Sleep(sleepCtx, m.clock, delay)
	release()
	if err != nil {
		if m.ctx.Err() != nil {
			err = ErrShutdownRequested
		}
		return fmt.Errorf("restart aborted: %w", err)
	}

	m.mu.Lock()
	switch {
	case m.ctx.Err() != nil:
		m.mu.Unlock()
		return fmt.Errorf("restart aborted: %w", ErrShutdownRequested)
	case m.state != from:
		state := m.state
		m.mu.Unlock()
		m.logger.Warn("state changed during restart delay", "from", from, "now", state)
		if m.shutdown.Load() {
			return fmt.Errorf("restart aborted: %w", ErrShutdownRequested)
		}
		return transitionError(state, StateRestarting)
	}
	m.state = StateRestarting
	m.shutdown.Store(false)
	m.metrics.HealthCheckFailures = 0
	m.mu.Unlock()

	m.logger.Info("state transition", "from", from, "to", StateRestarting)
	m.notify(StateRestarting)

	return m.Startup(ctx)
}
