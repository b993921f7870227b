package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"lifeguard/internal/dependency"
	"lifeguard/internal/events"
	"lifeguard/internal/policy"
)

// ContainerInfo identifies the container in a report.
type ContainerInfo struct {
	ID           string         `json:"container_id"`
	FlowName     string         `json:"flow_name"`
	State        State          `json:"state"`
	Hostname     string         `json:"hostname,omitempty"`
	PID          int            `json:"pid"`
	RestartCount int            `json:"current_restart_count"`
	Runtime      map[string]any `json:"runtime,omitempty"`
}

// DependencyInfo describes one configured dependency check and its last result.
type DependencyInfo struct {
	Name          string             `json:"name"`
	Required      bool               `json:"required"`
	Timeout       time.Duration      `json:"timeout"`
	RetryInterval time.Duration      `json:"retry_interval"`
	Description   string             `json:"description,omitempty"`
	LastResult    *dependency.Result `json:"last_result,omitempty"`
}

// Report is the exported lifecycle report.
type Report struct {
	ReportTimestamp  time.Time            `json:"report_timestamp"`
	ContainerInfo    ContainerInfo        `json:"container_info"`
	Metrics          Metrics              `json:"metrics"`
	RestartConfig    policy.RestartConfig `json:"restart_config"`
	EventHistory     []events.Record      `json:"event_history"`
	DependencyChecks []DependencyInfo     `json:"dependency_checks"`
}

// Report builds a snapshot of the container's lifecycle.
func (m *Manager) Report(ctx context.Context) Report {
	m.mu.Lock()
	info := ContainerInfo{
		ID:           m.containerID,
		FlowName:     m.flowName,
		State:        m.state,
		PID:          os.Getpid(),
		RestartCount: m.restartCount,
	}
	checks := append([]dependency.Check(nil), m.checks...)
	results := append([]dependency.Result(nil), m.depResults...)
	m.mu.Unlock()

	if h, err := os.Hostname(); err == nil {
		info.Hostname = h
	}
	if m.describer != nil {
		rt, err := m.describer.Describe(ctx, m.containerID)
		if err != nil {
			m.logger.Warn("failed to describe container", "error", err)
		} else {
			info.Runtime = rt
		}
	}

	if len(checks) == 0 && m.deps != nil {
		checks = m.deps.DefaultDependencyChecks()
	}
	byName := make(map[string]dependency.Result, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}
	deps := make([]DependencyInfo, 0, len(checks))
	for _, c := range checks {
		di := DependencyInfo{
			Name:          c.Name,
			Required:      c.Required,
			Timeout:       c.Timeout,
			RetryInterval: c.RetryInterval,
			Description:   c.Description,
		}
		if r, ok := byName[c.Name]; ok {
			di.LastResult = &r
		}
		deps = append(deps, di)
	}

	return Report{
		ReportTimestamp:  m.clock.Now(),
		ContainerInfo:    info,
		Metrics:          m.Metrics(),
		RestartConfig:    m.restart,
		EventHistory:     m.Events(),
		DependencyChecks: deps,
	}
}

// ExportReport writes the report as JSON to path, atomically replacing any
// previous file. Failures are logged and returned.
func (m *Manager) ExportReport(ctx context.Context, path string) error {
	data, err := json.MarshalIndent(m.Report(ctx), "", "  ")
	if err != nil {
		m.logger.Error("failed to encode lifecycle report", "error", err)
		return fmt.Errorf("encode report: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		m.logger.Error("failed to export lifecycle report", "path", path, "error", err)
		return fmt.Errorf("write report: %w", err)
	}
	m.logger.Info("lifecycle report exported", "path", path, "events", len(m.Events()))
	return nil
}
