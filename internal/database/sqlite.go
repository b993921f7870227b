package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"lifeguard/internal/config"
)

// SQLite is a Database backed by database/sql and the pure-Go sqlite driver.
type SQLite struct {
	name    string
	dsn     string
	timeout time.Duration

	mu sync.RWMutex
	db *sql.DB
}

// NewSQLite opens the database handle for cfg. No connection is made until
// the first query.
func NewSQLite(cfg config.Database) (*SQLite, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Name, err)
	}
	return &SQLite{name: cfg.Name, dsn: cfg.DSN, timeout: checkTimeout(cfg.Timeout), db: db}, nil
}

func (s *SQLite) Name() string { return s.name }

func (s *SQLite) handle() *sql.DB {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.db
}

// HealthCheck pings the handle and runs a trivial query.
func (s *SQLite) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db := s.handle()
	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return evaluate(fmt.Errorf("ping database: %w", err), nil, time.Since(start))
	}
	var one int
	err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
	if err != nil {
		err = fmt.Errorf("query test: %w", err)
	}
	return evaluate(nil, err, time.Since(start))
}

// CloseConnections swaps in a fresh handle and closes the old one, which
// drops every idle connection in its pool.
func (s *SQLite) CloseConnections() error {
	fresh, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return fmt.Errorf("reopen database %s: %w", s.name, err)
	}
	s.mu.Lock()
	old := s.db
	s.db = fresh
	s.mu.Unlock()
	return old.Close()
}

// Close closes the current handle.
func (s *SQLite) Close() error {
	return s.handle().Close()
}
