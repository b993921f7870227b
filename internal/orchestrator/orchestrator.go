// Package orchestrator resolves the databases and services a container
// depends on, probes them with a per-entity TTL cache and aggregates the
// results into one status.
package orchestrator

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"lifeguard/internal/clock"
	"lifeguard/internal/config"
	"lifeguard/internal/database"
	"lifeguard/internal/health"
)

// Orchestrator probes configured dependencies.
type Orchestrator struct {
	databases []config.Database
	services  []config.Service
	server    config.Server

	dbs    *database.Registry
	client *http.Client
	clock  clock.Clock
	logger *slog.Logger

	cache        cmap.ConcurrentMap[string, health.HealthStatus]
	cacheTTL     time.Duration
	pollInterval time.Duration
	retryDelay   time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock used for waits and cache expiry.
func WithClock(c clock.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// WithHTTPClient replaces the client used for service health endpoints.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) { o.client = c }
}

// New creates an orchestrator for the databases, services and orchestration
// server in cfg. Databases are resolved through dbs.
func New(cfg *config.Config, dbs *database.Registry, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		databases:    cfg.Databases,
		services:     cfg.Services,
		server:       cfg.Server,
		dbs:          dbs,
		client:       &http.Client{},
		clock:        clock.Real{},
		logger:       logger.With("component", "orchestrator"),
		cache:        cmap.New[health.HealthStatus](),
		cacheTTL:     cfg.Health.CacheTTL,
		pollInterval: cfg.Health.PollInterval,
		retryDelay:   500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// cached returns the cached status for name while it is younger than the TTL,
// otherwise runs probe and stores its result. Failures are cached too.
func (o *Orchestrator) cached(name string, probe func() health.HealthStatus) health.HealthStatus {
	if hs, ok := o.cache.Get(name); ok && o.clock.Since(hs.Timestamp) < o.cacheTTL {
		return hs
	}
	hs := probe()
	o.cache.Set(name, hs)
	return hs
}

// HandleServiceFailure drops the cached status for name so the next check
// probes again.
func (o *Orchestrator) HandleServiceFailure(name string, err error) {
	o.cache.Remove(name)
	o.logger.Error("service failure", "service", name, "error", err)
}

// CheckDatabase returns the (possibly cached) health of the named database.
func (o *Orchestrator) CheckDatabase(ctx context.Context, name string) (health.HealthStatus, error) {
	db, err := o.dbs.Get(name)
	if err != nil {
		return health.HealthStatus{}, err
	}
	return o.cached(name, func() health.HealthStatus {
		return o.probeDatabase(ctx, db)
	}), nil
}

func (o *Orchestrator) probeDatabase(ctx context.Context, db database.Database) health.HealthStatus {
	start := o.clock.Now()
	h := db.HealthCheck(ctx)

	hs := health.HealthStatus{
		Status: h.Status,
		Details: map[string]any{
			"connection":       h.Connection,
			"query_test":       h.QueryTest,
			"response_time_ms": h.ResponseTime.Milliseconds(),
		},
		Timestamp:     o.clock.Now(),
		CheckDuration: o.clock.Since(start),
	}
	switch h.Status {
	case health.StatusHealthy:
		hs.Message = "database is healthy"
	case health.StatusDegraded:
		hs.Message = "database connection ok but query test failed: " + h.Error
	default:
		hs.Message = "database unreachable: " + h.Error
	}
	return hs
}

// CheckService returns the (possibly cached) health of svc.
func (o *Orchestrator) CheckService(ctx context.Context, svc config.Service) health.HealthStatus {
	return o.cached(svc.Name, func() health.HealthStatus {
		return o.probeService(ctx, svc.HealthEndpoint, svc.Timeout, svc.RetryAttempts)
	})
}

// CheckServer returns the (possibly cached) health of the orchestration
// server. It reports ok=false when no server is configured.
func (o *Orchestrator) CheckServer(ctx context.Context) (hs health.HealthStatus, ok bool) {
	endpoint := o.server.HealthEndpoint()
	if endpoint == "" {
		return health.HealthStatus{}, false
	}
	return o.cached(config.ServerEntityName, func() health.HealthStatus {
		return o.probeService(ctx, endpoint, o.server.Timeout, 1)
	}), true
}

// entity is one aggregated health result.
type entity struct {
	status   health.Status
	required bool
}

// aggregate derives the overall status: a required unhealthy entity makes the
// whole unhealthy; otherwise any degraded entity makes it degraded. Optional
// unhealthy entities do not affect the result.
func aggregate(entities []entity) health.Status {
	for _, e := range entities {
		if e.required && e.status == health.StatusUnhealthy {
			return health.StatusUnhealthy
		}
	}
	for _, e := range entities {
		if e.status == health.StatusDegraded {
			return health.StatusDegraded
		}
	}
	return health.StatusHealthy
}

// ValidateServiceHealth checks every database, every service and the
// orchestration server, sequentially, and aggregates the result.
func (o *Orchestrator) ValidateServiceHealth(ctx context.Context) health.ServiceHealthStatus {
	out := health.ServiceHealthStatus{
		Databases: make(map[string]health.HealthStatus, len(o.databases)),
		Services:  make(map[string]health.HealthStatus, len(o.services)+1),
	}
	var entities []entity

	for _, dbc := range o.databases {
		hs, err := o.CheckDatabase(ctx, dbc.Name)
		if err != nil {
			hs = health.HealthStatus{
				Status:    health.StatusUnhealthy,
				Message:   err.Error(),
				Timestamp: o.clock.Now(),
			}
		}
		out.Databases[dbc.Name] = hs
		entities = append(entities, entity{hs.Status, dbc.IsRequired()})
	}

	for _, svc := range o.services {
		hs := o.CheckService(ctx, svc)
		out.Services[svc.Name] = hs
		entities = append(entities, entity{hs.Status, svc.Required})
	}

	if hs, ok := o.CheckServer(ctx); ok {
		out.Services[config.ServerEntityName] = hs
		entities = append(entities, entity{hs.Status, o.server.Required})
	}

	out.Overall = aggregate(entities)
	out.Timestamp = o.clock.Now()
	if out.Overall != health.StatusHealthy {
		o.logger.Warn("service health degraded", "overall_status", out.Overall)
	}
	return out
}
