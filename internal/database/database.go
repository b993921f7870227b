// Package database wraps the databases a container depends on behind a small
// health-check interface used by the orchestrator and the remediation engine.
package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lifeguard/internal/config"
	"lifeguard/internal/health"
)

// ErrUnknownDatabase is returned when a database name is not configured.
var ErrUnknownDatabase = errors.New("unknown database")

// Health is the result of one database health check.
type Health struct {
	Status       health.Status `json:"status"`
	Connection   bool          `json:"connection"`
	QueryTest    bool          `json:"query_test"`
	Error        string        `json:"error,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
}

// Database is one configured database collaborator.
type Database interface {
	Name() string
	HealthCheck(ctx context.Context) Health
	// CloseConnections drops every pooled connection; the next query dials fresh.
	CloseConnections() error
	Close() error
}

// evaluate turns the connection and query results into a Health value.
func evaluate(connErr, queryErr error, elapsed time.Duration) Health {
	h := Health{ResponseTime: elapsed}
	switch {
	case connErr != nil:
		h.Status = health.StatusUnhealthy
		h.Error = connErr.Error()
	case queryErr != nil:
		h.Status = health.StatusDegraded
		h.Connection = true
		h.Error = queryErr.Error()
	default:
		h.Status = health.StatusHealthy
		h.Connection = true
		h.QueryTest = true
	}
	return h
}

// Open creates the collaborator for cfg without connecting to it; the first
// health check dials.
func Open(ctx context.Context, cfg config.Database) (Database, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgres(ctx, cfg)
	case "sqlite":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("database %s: unsupported type %q", cfg.Name, cfg.Type)
	}
}

// Registry resolves databases by name.
type Registry struct {
	mu    sync.RWMutex
	dbs   map[string]Database
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{dbs: make(map[string]Database)}
}

// OpenAll opens every configured database into a new registry. On error the
// databases opened so far are closed.
func OpenAll(ctx context.Context, cfgs []config.Database) (*Registry, error) {
	r := NewRegistry()
	for _, c := range cfgs {
		db, err := Open(ctx, c)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.Add(db)
	}
	return r, nil
}

// Add registers db under its name, replacing any previous entry.
func (r *Registry) Add(db Database) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dbs[db.Name()]; !ok {
		r.order = append(r.order, db.Name())
	}
	r.dbs[db.Name()] = db
}

// Get returns the named database or ErrUnknownDatabase.
func (r *Registry) Get(name string) (Database, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.dbs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDatabase, name)
	}
	return db, nil
}

// Names returns the registered names in insertion order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Close closes every registered database and returns the first error.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, name := range r.order {
		if err := r.dbs[name].Close(); err != nil && first == nil {
			first = fmt.Errorf("close database %s: %w", name, err)
		}
	}
	return first
}
