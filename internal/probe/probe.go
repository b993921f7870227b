// Package probe runs the comprehensive health check: dependency health from
// the orchestrator plus local resource pressure.
package probe

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"lifeguard/internal/clock"
	"lifeguard/internal/health"
)

// CriticalPercent is the resource usage at which the container is unhealthy.
const CriticalPercent = 95.0

// ResourceCheckName is the Report key of the resource check.
const ResourceCheckName = "resources"

// Validator reports the aggregated health of databases and services.
type Validator interface {
	ValidateServiceHealth(ctx context.Context) health.ServiceHealthStatus
}

// MemorySampler returns used memory as a percentage.
type MemorySampler func(ctx context.Context) (float64, error)

// DiskSampler returns used disk as a percentage and free bytes for path.
type DiskSampler func(ctx context.Context, path string) (usedPercent float64, free uint64, err error)

// SampleMemory reads virtual memory usage from the host.
func SampleMemory(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("read memory usage: %w", err)
	}
	return vm.UsedPercent, nil
}

// SampleDisk reads filesystem usage for path.
func SampleDisk(ctx context.Context, path string) (float64, uint64, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, 0, fmt.Errorf("read disk usage for %s: %w", path, err)
	}
	return u.UsedPercent, u.Free, nil
}

// Config holds the warning thresholds and the filesystem to sample.
type Config struct {
	DiskPath        string
	MemoryThreshold float64
	DiskThreshold   float64
}

// Monitor is the health-probe collaborator of the lifecycle manager.
type Monitor struct {
	cfg       Config
	validator Validator
	memory    MemorySampler
	disk      DiskSampler
	clock     clock.Clock
	logger    *slog.Logger
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSamplers replaces the host resource samplers.
func WithSamplers(m MemorySampler, d DiskSampler) Option {
	return func(mon *Monitor) {
		mon.memory = m
		mon.disk = d
	}
}

// WithClock sets the clock used for report timestamps.
func WithClock(c clock.Clock) Option {
	return func(mon *Monitor) { mon.clock = c }
}

// New creates a monitor. validator may be nil when the container has no
// databases or services.
func New(cfg Config, validator Validator, logger *slog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		cfg:       cfg,
		validator: validator,
		memory:    SampleMemory,
		disk:      SampleDisk,
		clock:     clock.Real{},
		logger:    logger.With("component", "probe"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Init verifies the resource samplers work against the configured disk path.
func (m *Monitor) Init(ctx context.Context) error {
	if _, _, err := m.disk(ctx, m.cfg.DiskPath); err != nil {
		return fmt.Errorf("init health probe: %w", err)
	}
	if _, err := m.memory(ctx); err != nil {
		return fmt.Errorf("init health probe: %w", err)
	}
	return nil
}

// ComprehensiveHealthCheck combines dependency health and resource status.
// The overall status is the worse of the two.
func (m *Monitor) ComprehensiveHealthCheck(ctx context.Context) health.Report {
	report := health.Report{
		Status: health.StatusHealthy,
		Checks: make(map[string]health.CheckResult),
	}

	if m.validator != nil {
		svc := m.validator.ValidateServiceHealth(ctx)
		for name, hs := range svc.Databases {
			report.Checks[name] = health.CheckResult{Kind: health.KindDatabase, Status: hs.Status, Message: hs.Message, Details: hs.Details}
		}
		for name, hs := range svc.Services {
			report.Checks[name] = health.CheckResult{Kind: health.KindService, Status: hs.Status, Message: hs.Message, Details: hs.Details}
		}
		report.Status = svc.Overall
	}

	res, msg := m.resources(ctx)
	report.Resources = res
	report.Checks[ResourceCheckName] = health.CheckResult{
		Kind:    health.KindResource,
		Status:  res.Status,
		Message: msg,
		Details: map[string]any{
			"memory_usage_percent": res.MemoryUsagePercent,
			"disk_usage_percent":   res.DiskUsagePercent,
			"disk_free_bytes":      res.DiskFreeBytes,
		},
	}

	report.Status = health.Worst(report.Status, res.Status)
	report.Timestamp = m.clock.Now()
	return report
}

func (m *Monitor) resources(ctx context.Context) (health.ResourceStatus, string) {
	var rs health.ResourceStatus
	var msg string

	memPct, err := m.memory(ctx)
	if err != nil {
		m.logger.Warn("memory sampling failed", "error", err)
		rs.Status = health.StatusDegraded
		msg = err.Error()
	}
	rs.MemoryUsagePercent = memPct

	diskPct, free, err := m.disk(ctx, m.cfg.DiskPath)
	if err != nil {
		m.logger.Warn("disk sampling failed", "error", err)
		rs.Status = health.Worst(rs.Status, health.StatusDegraded)
		msg = err.Error()
	}
	rs.DiskUsagePercent = diskPct
	rs.DiskFreeBytes = free

	rs.Status = health.Worst(rs.Status, level(memPct, m.cfg.MemoryThreshold))
	rs.Status = health.Worst(rs.Status, level(diskPct, m.cfg.DiskThreshold))
	if msg == "" {
		msg = fmt.Sprintf("memory %.1f%%, disk %.1f%%", memPct, diskPct)
	}
	return rs, msg
}

// level grades a usage percentage against the warning and critical marks.
func level(pct, warning float64) health.Status {
	switch {
	case pct >= CriticalPercent:
		return health.StatusUnhealthy
	case pct >= warning:
		return health.StatusDegraded
	default:
		return health.StatusHealthy
	}
}
