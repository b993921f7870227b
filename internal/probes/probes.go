// Package probes builds dependency.Probe values for common dependency kinds.
package probes

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/redis/go-redis/v9"

	"lifeguard/internal/config"
	"lifeguard/internal/database"
	"lifeguard/internal/dependency"
	"lifeguard/internal/health"
)

// HTTP reports ready when a GET on url returns 2xx.
func HTTP(client *http.Client, url string) dependency.Probe {
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	}
}

// TCP reports ready when addr accepts a connection within timeout.
func TCP(addr string, timeout time.Duration) dependency.Probe {
	check := healthcheck.TCPDialCheck(addr, timeout)
	return func(context.Context) bool {
		return check() == nil
	}
}

// Redis reports ready when the server answers PING.
func Redis(addr, password string, timeout time.Duration) dependency.Probe {
	return func(ctx context.Context) bool {
		client := redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    password,
			DialTimeout: timeout,
			MaxRetries:  -1,
		})
		defer client.Close()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(ctx).Err() == nil
	}
}

// Database reports ready when db's health check is healthy.
func Database(db database.Database) dependency.Probe {
	return func(ctx context.Context) bool {
		return db.HealthCheck(ctx).Status == health.StatusHealthy
	}
}

// FromConfig builds a dependency check for every configured dependency.
func FromConfig(deps []config.Dependency, client *http.Client) ([]dependency.Check, error) {
	checks := make([]dependency.Check, 0, len(deps))
	for _, d := range deps {
		perAttempt := d.RetryInterval
		if perAttempt <= 0 || perAttempt > d.Timeout {
			perAttempt = d.Timeout
		}

		var probe dependency.Probe
		switch d.Type {
		case "http":
			probe = HTTP(client, d.Address)
		case "tcp":
			probe = TCP(d.Address, perAttempt)
		case "redis":
			probe = Redis(d.Address, d.Password, perAttempt)
		default:
			return nil, fmt.Errorf("dependency %s: unsupported type %q", d.Name, d.Type)
		}

		checks = append(checks, dependency.Check{
			Name:          d.Name,
			Probe:         probe,
			Timeout:       d.Timeout,
			RetryInterval: d.RetryInterval,
			Required:      d.Required,
			Description:   d.Description,
		})
	}
	return checks, nil
}
