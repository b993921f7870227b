// Package lifecycle drives one container through startup validation,
// dependency waiting, health monitoring with remediation, graceful shutdown
// and policy-driven restarts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"lifeguard/internal/clock"
	"lifeguard/internal/config"
	"lifeguard/internal/dependency"
	"lifeguard/internal/events"
	"lifeguard/internal/health"
	"lifeguard/internal/policy"
	"lifeguard/internal/probe"
	"lifeguard/internal/remediation"
)

var (
	// ErrValidation classifies a failed startup environment check.
	ErrValidation = errors.New("startup validation failed")
	// ErrDependencyUnavailable classifies a required dependency timing out.
	ErrDependencyUnavailable = errors.New("required dependency unavailable")
	// ErrUnhealthy classifies an unhealthy initial health check.
	ErrUnhealthy = errors.New("container unhealthy")
	// ErrRestartLimit is returned when no restart attempts remain.
	ErrRestartLimit = errors.New("restart limit reached")
	// ErrShutdownRequested is returned by a restart interrupted by a shutdown.
	ErrShutdownRequested = errors.New("shutdown requested")
)

// Prober runs the comprehensive health check. A Prober that also has an
// Init(ctx) error method is initialised once per startup.
type Prober interface {
	ComprehensiveHealthCheck(ctx context.Context) health.Report
}

type initializer interface {
	Init(ctx context.Context) error
}

// Remediator runs corrective actions for a failing report.
type Remediator interface {
	Remediate(ctx context.Context, report health.Report) []remediation.ActionResult
}

// DependencySource supplies the checks used when none are registered.
type DependencySource interface {
	DefaultDependencyChecks() []dependency.Check
}

// Describer adds runtime details about the container to the report.
type Describer interface {
	Describe(ctx context.Context, id string) (map[string]any, error)
}

// Metrics are the lifecycle counters of the container.
type Metrics struct {
	StartupCount        int       `json:"startup_count"`
	SuccessfulStartups  int       `json:"successful_startups"`
	FailedStartups      int       `json:"failed_startups"`
	RestartCount        int       `json:"restart_count"`
	GracefulShutdowns   int       `json:"graceful_shutdowns"`
	ForcedShutdowns     int       `json:"forced_shutdowns"`
	HealthCheckFailures int       `json:"health_check_failures"`
	TotalUptimeSeconds  float64   `json:"total_uptime_seconds"`
	LastStartupTime     time.Time `json:"last_startup_time"`
	LastShutdownTime    time.Time `json:"last_shutdown_time"`
}

type cleanupHandler struct {
	name string
	fn   func() error
}

// Manager is the lifecycle state machine of one container.
type Manager struct {
	containerID string
	flowName    string
	cfg         *config.Config
	restart     policy.RestartConfig

	prober     Prober
	deps       DependencySource
	remediator Remediator
	describer  Describer
	emitter    *events.Emitter
	clock      clock.Clock
	logger     *slog.Logger

	lookupEnv  func(string) (string, bool)
	diskFree   func(ctx context.Context, path string) (uint64, error)
	loadConfig func() error
	observers  []func(State)

	history events.History
	pool    *ants.Pool

	shutdown atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc

	mu           sync.Mutex
	state        State
	metrics      Metrics
	uptime       time.Duration
	runningSince time.Time
	restartCount int
	lastRestart  time.Time
	checks       []dependency.Check
	depResults   []dependency.Result
	cleanup      []cleanupHandler

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

func WithClock(c clock.Clock) Option { return func(m *Manager) { m.clock = c } }

func WithProber(p Prober) Option { return func(m *Manager) { m.prober = p } }

func WithDependencySource(d DependencySource) Option { return func(m *Manager) { m.deps = d } }

func WithRemediator(r Remediator) Option { return func(m *Manager) { m.remediator = r } }

func WithDescriber(d Describer) Option { return func(m *Manager) { m.describer = d } }

// WithEmitter routes lifecycle records through e so other components
// (metrics, hermes) can subscribe.
func WithEmitter(e *events.Emitter) Option { return func(m *Manager) { m.emitter = e } }

// WithLookupEnv replaces os.LookupEnv for environment validation.
func WithLookupEnv(fn func(string) (string, bool)) Option {
	return func(m *Manager) { m.lookupEnv = fn }
}

// WithDiskFree replaces the free-space sampler used during validation.
func WithDiskFree(fn func(ctx context.Context, path string) (uint64, error)) Option {
	return func(m *Manager) { m.diskFree = fn }
}

// WithConfigLoader sets the config loadability check run during validation.
func WithConfigLoader(fn func() error) Option {
	return func(m *Manager) { m.loadConfig = fn }
}

// WithStateObserver registers fn to be called after every state change.
func WithStateObserver(fn func(State)) Option {
	return func(m *Manager) { m.observers = append(m.observers, fn) }
}

// New creates a Manager in the INITIALIZING state.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Manager, error) {
	rc, err := policy.FromConfig(cfg.Restart)
	if err != nil {
		return nil, fmt.Errorf("restart config: %w", err)
	}
	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create remediation pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		containerID: containerID(cfg.Container.ID),
		flowName:    cfg.Container.FlowName,
		cfg:         cfg,
		restart:     rc,
		clock:       clock.Real{},
		lookupEnv:   os.LookupEnv,
		diskFree: func(ctx context.Context, path string) (uint64, error) {
			_, free, err := probe.SampleDisk(ctx, path)
			return free, err
		},
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		state:  StateInitializing,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.With("component", "lifecycle", "container", m.containerID)
	if m.emitter == nil {
		m.emitter = events.NewEmitter(logger)
	}
	m.notify(StateInitializing)
	return m, nil
}

func containerID(configured string) string {
	if configured != "" {
		return configured
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.New().String()
}

// ContainerID returns the identity recorded on every event.
func (m *Manager) ContainerID() string { return m.containerID }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition moves to `to` if the edge is permitted.
func (m *Manager) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		err := transitionError(from, to)
		m.logger.Warn("rejected state transition", "from", from, "to", to)
		return err
	}
	m.state = to
	m.mu.Unlock()

	m.logger.Info("state transition", "from", from, "to", to)
	m.notify(to)
	return nil
}

func (m *Manager) notify(s State) {
	for _, fn := range m.observers {
		fn(s)
	}
}

// emit appends a record to the history and hands it to the emitter.
func (m *Manager) emit(kind events.Kind, details map[string]any) {
	m.record(events.Record{Kind: kind, Details: details})
}

func (m *Manager) record(rec events.Record) {
	rec.Timestamp = m.clock.Now()
	rec.ContainerID = m.containerID
	rec.FlowName = m.flowName
	m.history.Append(rec)
	m.emitter.Emit(rec)
}

// Events returns the event history in order.
func (m *Manager) Events() []events.Record {
	return m.history.Snapshot()
}

// Metrics returns a copy of the counters. Uptime includes the current
// running period.
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.metrics
	up := m.uptime
	if !m.runningSince.IsZero() {
		up += m.clock.Since(m.runningSince)
	}
	out.TotalUptimeSeconds = up.Seconds()
	return out
}

// RestartConfig returns the restart policy in effect.
func (m *Manager) RestartConfig() policy.RestartConfig { return m.restart }

// AddDependencyCheck registers a readiness check. Once any check is
// registered the default set is no longer used.
func (m *Manager) AddDependencyCheck(c dependency.Check) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, c)
}

// RegisterCleanupHandler adds fn to the handlers run on graceful shutdown,
// in registration order.
func (m *Manager) RegisterCleanupHandler(name string, fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanup = append(m.cleanup, cleanupHandler{name: name, fn: fn})
}

// bound returns a context that ends with ctx or as soon as a shutdown is
// requested.
func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Close releases the remediation worker.
func (m *Manager) Close() {
	m.cancel()
	m.pool.Release()
}
