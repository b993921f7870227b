package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"lifeguard/internal/hermes"
)

type Config struct {
	Listen       string       `yaml:"listen"`
	AdminToken   string       `yaml:"admin_token"`
	Container    Container    `yaml:"container"`
	Health       Health       `yaml:"health"`
	Restart      Restart      `yaml:"restart"`
	Shutdown     Shutdown     `yaml:"shutdown"`
	Databases    []Database   `yaml:"databases"`
	Services     []Service    `yaml:"services"`
	Server       Server       `yaml:"server"`
	Dependencies []Dependency `yaml:"dependencies"`
	Hermes       HermesConfig `yaml:"hermes"`
	Docker       Docker       `yaml:"docker"`
	Webhooks     []Webhook    `yaml:"webhooks"`
}

type Container struct {
	ID                 string   `yaml:"id"`
	FlowName           string   `yaml:"flow_name"`
	RequiredEnv        []string `yaml:"required_env"`
	Directories        []string `yaml:"directories"`
	CleanupDirectories []string `yaml:"cleanup_directories"`
	DiskPath           string   `yaml:"disk_path"`
	MinFreeDiskMB      uint64   `yaml:"min_free_disk_mb"`
	WarnFreeDiskMB     uint64   `yaml:"warn_free_disk_mb"`
}

type Health struct {
	CheckInterval      time.Duration `yaml:"check_interval"`
	MaxFailures        int           `yaml:"max_failures"`
	MonitorTick        time.Duration `yaml:"monitor_tick"`
	CacheTTL           time.Duration `yaml:"cache_ttl"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MemoryThreshold    float64       `yaml:"memory_threshold"`
	DiskThreshold      float64       `yaml:"disk_threshold"`
	CleanupMaxFileAge  time.Duration `yaml:"cleanup_max_file_age"`
	DependencyTimeout  time.Duration `yaml:"dependency_timeout"`
	DependencyInterval time.Duration `yaml:"dependency_interval"`
}

// DefaultMaxRestartAttempts applies when max_attempts is omitted. An explicit
// 0 disables restarts.
const DefaultMaxRestartAttempts = 5

type Restart struct {
	Policy             string        `yaml:"policy"`
	MaxAttempts        *int          `yaml:"max_attempts"`
	Delay              time.Duration `yaml:"delay"`
	ExponentialBackoff *bool         `yaml:"exponential_backoff"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	Window             time.Duration `yaml:"window"`
}

type Shutdown struct {
	Timeout    time.Duration `yaml:"timeout"`
	ReportPath string        `yaml:"report_path"`
}

// Database describes one database the container depends on.
type Database struct {
	Name     string        `yaml:"name"`
	Type     string        `yaml:"type"`
	DSN      string        `yaml:"dsn"`
	Required *bool         `yaml:"required"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxConns int32         `yaml:"max_conns"`
}

// IsRequired reports whether the database must be healthy; databases are
// required unless explicitly marked otherwise.
func (d Database) IsRequired() bool {
	return d.Required == nil || *d.Required
}

// Service is an HTTP dependency polled through its health endpoint.
type Service struct {
	Name           string        `yaml:"name"`
	HealthEndpoint string        `yaml:"health_endpoint"`
	Timeout        time.Duration `yaml:"timeout"`
	RetryAttempts  int           `yaml:"retry_attempts"`
	Required       bool          `yaml:"required"`
}

// Server is the orchestration server (the workflow API the flows report to).
type Server struct {
	URL        string        `yaml:"url"`
	HealthPath string        `yaml:"health_path"`
	Timeout    time.Duration `yaml:"timeout"`
	Required   bool          `yaml:"required"`
}

// HealthEndpoint returns the full health URL, or "" when no server is configured.
func (s Server) HealthEndpoint() string {
	if s.URL == "" {
		return ""
	}
	return s.URL + s.HealthPath
}

// Dependency is an extra readiness probe checked during startup.
type Dependency struct {
	Name          string        `yaml:"name"`
	Type          string        `yaml:"type"`
	Address       string        `yaml:"address"`
	Password      string        `yaml:"password"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	Required      bool          `yaml:"required"`
	Description   string        `yaml:"description"`
}

type HermesConfig struct {
	Enabled       bool `yaml:"enabled"`
	hermes.Config `yaml:",inline"`
}

// Webhook receives lifecycle records as JSON. An empty Events list matches
// every kind.
type Webhook struct {
	URL     string            `yaml:"url"`
	Events  []string          `yaml:"events"`
	Headers map[string]string `yaml:"headers"`
}

type Docker struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads, expands and validates the YAML config at path. ${VAR}
// references are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":9090"
	}

	c := &cfg.Container
	if c.ID == "" {
		c.ID = os.Getenv("HOSTNAME")
	}
	if c.FlowName == "" {
		c.FlowName = os.Getenv("CONTAINER_FLOW_NAME")
	}
	if c.DiskPath == "" {
		c.DiskPath = "/"
	}
	if c.MinFreeDiskMB == 0 {
		c.MinFreeDiskMB = 100
	}
	if c.WarnFreeDiskMB == 0 {
		c.WarnFreeDiskMB = 1024
	}

	h := &cfg.Health
	if h.CheckInterval == 0 {
		h.CheckInterval = 30 * time.Second
	}
	if h.MaxFailures == 0 {
		h.MaxFailures = 3
	}
	if h.MonitorTick == 0 {
		h.MonitorTick = time.Second
	}
	if h.CacheTTL == 0 {
		h.CacheTTL = 30 * time.Second
	}
	if h.PollInterval == 0 {
		h.PollInterval = 2 * time.Second
	}
	if h.MemoryThreshold == 0 {
		h.MemoryThreshold = 90
	}
	if h.DiskThreshold == 0 {
		h.DiskThreshold = 90
	}
	if h.CleanupMaxFileAge == 0 {
		h.CleanupMaxFileAge = time.Hour
	}
	if h.DependencyTimeout == 0 {
		h.DependencyTimeout = 60 * time.Second
	}
	if h.DependencyInterval == 0 {
		h.DependencyInterval = 2 * time.Second
	}

	r := &cfg.Restart
	if r.Policy == "" {
		r.Policy = "on-failure"
	}
	if r.MaxAttempts == nil {
		n := DefaultMaxRestartAttempts
		r.MaxAttempts = &n
	}
	if r.Delay == 0 {
		r.Delay = 10 * time.Second
	}
	if r.ExponentialBackoff == nil {
		on := true
		r.ExponentialBackoff = &on
	}
	if r.MaxDelay == 0 {
		r.MaxDelay = 5 * time.Minute
	}
	if r.Window == 0 {
		r.Window = time.Hour
	}

	if cfg.Shutdown.Timeout == 0 {
		cfg.Shutdown.Timeout = 30 * time.Second
	}

	for i := range cfg.Databases {
		db := &cfg.Databases[i]
		if db.Type == "" {
			db.Type = "postgres"
		}
		if db.Timeout == 0 {
			db.Timeout = h.DependencyTimeout
		}
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if svc.Timeout == 0 {
			svc.Timeout = 10 * time.Second
		}
		if svc.RetryAttempts == 0 {
			svc.RetryAttempts = 3
		}
	}

	if cfg.Server.URL != "" {
		if cfg.Server.HealthPath == "" {
			cfg.Server.HealthPath = "/health"
		}
		if cfg.Server.Timeout == 0 {
			cfg.Server.Timeout = 30 * time.Second
		}
	}

	for i := range cfg.Dependencies {
		dep := &cfg.Dependencies[i]
		if dep.Timeout == 0 {
			dep.Timeout = h.DependencyTimeout
		}
		if dep.RetryInterval == 0 {
			dep.RetryInterval = h.DependencyInterval
		}
	}

	if cfg.Hermes.Enabled {
		def := hermes.DefaultConfig()
		if cfg.Hermes.URL == "" {
			cfg.Hermes.URL = def.URL
		}
		if cfg.Hermes.ConnectTimeout == 0 {
			cfg.Hermes.ConnectTimeout = def.ConnectTimeout
		}
		if cfg.Hermes.ReconnectWait == 0 {
			cfg.Hermes.ReconnectWait = def.ReconnectWait
		}
		if cfg.Hermes.MaxReconnects == 0 {
			cfg.Hermes.MaxReconnects = def.MaxReconnects
		}
	}
}
