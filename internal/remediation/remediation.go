// Package remediation maps a failing health report to corrective actions.
package remediation

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"time"

	"lifeguard/internal/clock"
	"lifeguard/internal/database"
	"lifeguard/internal/health"
)

// Action names a corrective action.
type Action string

const (
	ActionRestartConnections Action = "restart_connections"
	ActionMemoryCleanup      Action = "memory_cleanup"
	ActionDiskCleanup        Action = "disk_cleanup"
)

// ActionResult is the outcome of one action.
type ActionResult struct {
	Action  Action `json:"action"`
	Target  string `json:"target,omitempty"`
	Removed int    `json:"removed_files,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether the action succeeded.
func (r ActionResult) OK() bool { return r.Error == "" }

// Databases resolves database collaborators by name.
type Databases interface {
	Get(name string) (database.Database, error)
}

// Config controls when resource actions fire and what disk cleanup removes.
type Config struct {
	MemoryThreshold float64
	DiskThreshold   float64
	MaxFileAge      time.Duration
	CleanupDirs     []string
}

// Engine runs remediation actions.
type Engine struct {
	cfg        Config
	dbs        Databases
	clock      clock.Clock
	freeMemory func()
	logger     *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used to age files.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMemoryReclaimer replaces the forced GC used by memory cleanup.
func WithMemoryReclaimer(fn func()) Option {
	return func(e *Engine) { e.freeMemory = fn }
}

// New creates an engine. dbs may be nil when no databases are configured.
func New(cfg Config, dbs Databases, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:        cfg,
		dbs:        dbs,
		clock:      clock.Real{},
		freeMemory: debug.FreeOSMemory,
		logger:     logger.With("component", "remediation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Remediate derives actions from report and runs each one. A failing action
// is logged and never stops the others.
func (e *Engine) Remediate(ctx context.Context, report health.Report) []ActionResult {
	var results []ActionResult

	// Map iteration order is random; sort for a stable action order.
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		check := report.Checks[name]
		if check.Kind != health.KindDatabase || check.Status == health.StatusHealthy {
			continue
		}
		results = append(results, e.restartConnections(name))
	}

	if report.Resources.MemoryUsagePercent > e.cfg.MemoryThreshold {
		results = append(results, e.memoryCleanup(report.Resources.MemoryUsagePercent))
	}

	if report.Resources.DiskUsagePercent > e.cfg.DiskThreshold {
		results = append(results, e.diskCleanup(ctx))
	}

	for _, r := range results {
		if r.OK() {
			e.logger.Info("remediation action completed", "action", r.Action, "target", r.Target, "removed_files", r.Removed)
		} else {
			e.logger.Error("remediation action failed", "action", r.Action, "target", r.Target, "error", r.Error)
		}
	}
	return results
}

func (e *Engine) restartConnections(name string) ActionResult {
	res := ActionResult{Action: ActionRestartConnections, Target: name}
	if e.dbs == nil {
		res.Error = "no database registry"
		return res
	}
	db, err := e.dbs.Get(name)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if err := closeConnections(db); err != nil {
		res.Error = err.Error()
	}
	return res
}

// closeConnections calls CloseConnections, turning a panic into an error.
func closeConnections(db database.Database) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("close connections panicked: %v", r)
		}
	}()
	return db.CloseConnections()
}

func (e *Engine) memoryCleanup(usage float64) ActionResult {
	e.logger.Warn("memory usage above threshold, forcing garbage collection",
		"memory_usage_percent", usage, "threshold", e.cfg.MemoryThreshold)
	e.freeMemory()
	return ActionResult{Action: ActionMemoryCleanup}
}

// diskCleanup removes regular files older than MaxFileAge from every cleanup
// directory. Per-file errors are skipped; missing directories are ignored.
func (e *Engine) diskCleanup(ctx context.Context) ActionResult {
	res := ActionResult{Action: ActionDiskCleanup}
	cutoff := e.clock.Now().Add(-e.cfg.MaxFileAge)

	for _, dir := range e.cfg.CleanupDirs {
		if ctx.Err() != nil {
			res.Error = ctx.Err().Error()
			return res
		}
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == dir {
					return err
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				e.logger.Debug("skipping file", "path", path, "error", err)
				return nil
			}
			res.Removed++
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			e.logger.Warn("cleanup directory walk failed", "dir", dir, "error", err)
		}
	}
	return res
}
