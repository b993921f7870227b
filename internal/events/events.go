package events

import (
	"log/slog"
	"sync"
	"time"
)

// Kind identifies a discrete lifecycle occurrence.
type Kind string

const (
	StartupInitiated  Kind = "startup_initiated"
	StartupCompleted  Kind = "startup_completed"
	DependenciesReady Kind = "dependencies_ready"
	HealthCheckPassed Kind = "health_check_passed"
	HealthCheckFailed Kind = "health_check_failed"
	ShutdownInitiated Kind = "shutdown_initiated"
	ShutdownCompleted Kind = "shutdown_completed"
	RestartInitiated  Kind = "restart_initiated"
	FailureDetected   Kind = "failure_detected"
	RecoveryCompleted Kind = "recovery_completed"
)

// AllKinds lists every Kind in lifecycle order.
var AllKinds = []Kind{
	StartupInitiated, StartupCompleted, DependenciesReady,
	HealthCheckPassed, HealthCheckFailed,
	ShutdownInitiated, ShutdownCompleted,
	RestartInitiated, FailureDetected, RecoveryCompleted,
}

// Record is one entry of a container's event history.
type Record struct {
	Kind        Kind           `json:"event"`
	Timestamp   time.Time      `json:"timestamp"`
	ContainerID string         `json:"container_id"`
	FlowName    string         `json:"flow_name,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	DurationMs  *int64         `json:"duration_ms,omitempty"`
}

// WithDuration returns a copy of r carrying d in milliseconds.
func (r Record) WithDuration(d time.Duration) Record {
	ms := d.Milliseconds()
	r.DurationMs = &ms
	return r
}

// Emitter logs records and dispatches them to registered handlers.
type Emitter struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers []func(Record)
}

// NewEmitter creates a new event emitter.
func NewEmitter(logger *slog.Logger) *Emitter {
	return &Emitter{
		logger: logger.With("component", "events"),
	}
}

// Emit logs the record and calls all registered handlers.
func (e *Emitter) Emit(rec Record) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	attrs := []any{
		"event", rec.Kind,
		"container", rec.ContainerID,
	}
	if rec.DurationMs != nil {
		attrs = append(attrs, "duration_ms", *rec.DurationMs)
	}
	for k, v := range rec.Details {
		attrs = append(attrs, k, v)
	}
	e.logger.Info("event emitted", attrs...)

	e.mu.RLock()
	handlers := e.handlers
	e.mu.RUnlock()

	for _, fn := range handlers {
		if fn != nil {
			fn(rec)
		}
	}
}

// OnEvent registers a handler to be called for every emitted record.
// Returns an ID that can be used with RemoveHandler.
func (e *Emitter) OnEvent(fn func(Record)) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, fn)
	return len(e.handlers) - 1
}

// RemoveHandler removes a handler by its ID.
func (e *Emitter) RemoveHandler(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if id >= 0 && id < len(e.handlers) {
		e.handlers[id] = nil
	}
}
