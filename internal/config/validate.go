package config

import (
	"fmt"
	"net/url"
)

// ServerEntityName is the entity name the orchestration server is reported under.
const ServerEntityName = "orchestration-server"

func validate(cfg *Config) error {
	switch cfg.Restart.Policy {
	case "no", "always", "on-failure", "unless-stopped":
		// valid
	default:
		return fmt.Errorf("config: unknown restart policy %q", cfg.Restart.Policy)
	}
	if cfg.Restart.MaxAttempts != nil && *cfg.Restart.MaxAttempts < 0 {
		return fmt.Errorf("config: restart.max_attempts must be >= 0")
	}
	if cfg.Restart.MaxDelay < cfg.Restart.Delay {
		return fmt.Errorf("config: restart.max_delay (%s) is shorter than restart.delay (%s)", cfg.Restart.MaxDelay, cfg.Restart.Delay)
	}
	if cfg.Health.MaxFailures < 1 {
		return fmt.Errorf("config: health.max_failures must be >= 1")
	}
	if cfg.Container.WarnFreeDiskMB < cfg.Container.MinFreeDiskMB {
		return fmt.Errorf("config: container.warn_free_disk_mb must be >= min_free_disk_mb")
	}

	// Databases, services and the orchestration server share one health cache
	// keyed by name.
	names := map[string]string{ServerEntityName: "server"}

	for i, db := range cfg.Databases {
		if db.Name == "" {
			return fmt.Errorf("config: database #%d missing name", i)
		}
		switch db.Type {
		case "postgres", "sqlite":
			// valid
		default:
			return fmt.Errorf("config: database %q unknown type %q", db.Name, db.Type)
		}
		if db.DSN == "" {
			return fmt.Errorf("config: database %q missing dsn", db.Name)
		}
		if prev, ok := names[db.Name]; ok {
			return fmt.Errorf("config: duplicate name %q (%s and database)", db.Name, prev)
		}
		names[db.Name] = "database"
	}

	for i, svc := range cfg.Services {
		if svc.Name == "" {
			return fmt.Errorf("config: service #%d missing name", i)
		}
		if svc.HealthEndpoint == "" {
			return fmt.Errorf("config: service %q missing health_endpoint", svc.Name)
		}
		if _, err := url.Parse(svc.HealthEndpoint); err != nil {
			return fmt.Errorf("config: service %q invalid health_endpoint: %w", svc.Name, err)
		}
		if prev, ok := names[svc.Name]; ok {
			return fmt.Errorf("config: duplicate name %q (%s and service)", svc.Name, prev)
		}
		names[svc.Name] = "service"
	}

	if cfg.Server.URL != "" {
		if _, err := url.Parse(cfg.Server.URL); err != nil {
			return fmt.Errorf("config: invalid server.url: %w", err)
		}
	}

	for i, dep := range cfg.Dependencies {
		if dep.Name == "" {
			return fmt.Errorf("config: dependency #%d missing name", i)
		}
		switch dep.Type {
		case "http", "tcp", "redis":
			// valid
		case "":
			return fmt.Errorf("config: dependency %q missing type", dep.Name)
		default:
			return fmt.Errorf("config: dependency %q unknown type %q", dep.Name, dep.Type)
		}
		if dep.Address == "" {
			return fmt.Errorf("config: dependency %q missing address", dep.Name)
		}
	}

	for i, wh := range cfg.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("config: webhook #%d missing url", i)
		}
		if _, err := url.Parse(wh.URL); err != nil {
			return fmt.Errorf("config: webhook #%d invalid url: %w", i, err)
		}
	}

	return nil
}
