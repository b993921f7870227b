// Package health holds the result types shared by the orchestrator, the
// comprehensive probe and the remediation engine.
package health

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the health of a single entity or of an aggregate.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "healthy":
		return StatusHealthy, nil
	case "degraded":
		return StatusDegraded, nil
	case "unhealthy":
		return StatusUnhealthy, nil
	default:
		return StatusUnhealthy, fmt.Errorf("unknown health status %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Worst returns the more severe of a and b.
func Worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// HealthStatus is the outcome of one health check against one entity.
type HealthStatus struct {
	Status        Status         `json:"status"`
	Message       string         `json:"message"`
	Details       map[string]any `json:"details,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	CheckDuration time.Duration  `json:"check_duration"`
}

// Healthy reports whether the status is StatusHealthy.
func (h HealthStatus) Healthy() bool { return h.Status == StatusHealthy }

func (h HealthStatus) MarshalJSON() ([]byte, error) {
	type alias HealthStatus
	return json.Marshal(struct {
		alias
		CheckDurationMs int64 `json:"check_duration_ms"`
	}{alias(h), h.CheckDuration.Milliseconds()})
}

// ServiceHealthStatus aggregates every database and service the container
// depends on.
type ServiceHealthStatus struct {
	Overall   Status                  `json:"overall_status"`
	Databases map[string]HealthStatus `json:"databases"`
	Services  map[string]HealthStatus `json:"services"`
	Timestamp time.Time               `json:"timestamp"`
}

// CheckKind tags what a Report check refers to.
type CheckKind string

const (
	KindDatabase CheckKind = "database"
	KindService  CheckKind = "service"
	KindResource CheckKind = "resource"
)

// CheckResult is one named entry of a comprehensive Report.
type CheckResult struct {
	Kind    CheckKind      `json:"kind"`
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// ResourceStatus is a point-in-time sample of local resource pressure.
type ResourceStatus struct {
	MemoryUsagePercent float64 `json:"memory_usage_percent"`
	DiskUsagePercent   float64 `json:"disk_usage_percent"`
	DiskFreeBytes      uint64  `json:"disk_free_bytes"`
	Status             Status  `json:"status"`
}

// Report is the result of a comprehensive health check.
type Report struct {
	Status    Status                 `json:"overall_status"`
	Checks    map[string]CheckResult `json:"checks"`
	Resources ResourceStatus         `json:"resource_status"`
	Timestamp time.Time              `json:"timestamp"`
}
