package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lifeguard/internal/config"
)

// Postgres is a Database backed by a pgxpool connection pool.
type Postgres struct {
	name    string
	pool    *pgxpool.Pool
	timeout time.Duration
}

// NewPostgres builds the pool for cfg. The pool connects lazily.
func NewPostgres(ctx context.Context, cfg config.Database) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database %s dsn: %w", cfg.Name, err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database %s: %w", cfg.Name, err)
	}
	return &Postgres{name: cfg.Name, pool: pool, timeout: checkTimeout(cfg.Timeout)}, nil
}

func (p *Postgres) Name() string { return p.name }

// HealthCheck pings the pool and runs a trivial query.
func (p *Postgres) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	if err := p.pool.Ping(ctx); err != nil {
		return evaluate(fmt.Errorf("ping database: %w", err), nil, time.Since(start))
	}
	var one int
	err := p.pool.QueryRow(ctx, "SELECT 1").Scan(&one)
	if err != nil {
		err = fmt.Errorf("query test: %w", err)
	}
	return evaluate(nil, err, time.Since(start))
}

// CloseConnections closes all pooled connections while leaving the pool open.
func (p *Postgres) CloseConnections() error {
	p.pool.Reset()
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// checkTimeout bounds a single health check. Waits poll repeatedly, so one
// probe should never consume the whole dependency budget.
func checkTimeout(d time.Duration) time.Duration {
	const limit = 5 * time.Second
	if d <= 0 || d > limit {
		return limit
	}
	return d
}
