package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"lifeguard/internal/admin"
	"lifeguard/internal/alerts"
	"lifeguard/internal/config"
	"lifeguard/internal/container"
	"lifeguard/internal/database"
	"lifeguard/internal/events"
	"lifeguard/internal/hermes"
	"lifeguard/internal/lifecycle"
	"lifeguard/internal/metrics"
	"lifeguard/internal/orchestrator"
	"lifeguard/internal/probe"
	"lifeguard/internal/probes"
	"lifeguard/internal/remediation"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the container lifecycle and serve the admin API until shutdown",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, logger)
		},
	}
}

// stack holds the collaborators shared by the run, wait and check commands.
type stack struct {
	dbs          *database.Registry
	orchestrator *orchestrator.Orchestrator
	monitor      *probe.Monitor
}

func newStack(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stack, error) {
	dbs, err := database.OpenAll(ctx, cfg.Databases)
	if err != nil {
		return nil, fmt.Errorf("open databases: %w", err)
	}
	orch := orchestrator.New(cfg, dbs, logger)
	mon := probe.New(probe.Config{
		DiskPath:        cfg.Container.DiskPath,
		MemoryThreshold: cfg.Health.MemoryThreshold,
		DiskThreshold:   cfg.Health.DiskThreshold,
	}, orch, logger)
	return &stack{dbs: dbs, orchestrator: orch, monitor: mon}, nil
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := newStack(ctx, cfg, logger)
	if err != nil {
		return err
	}

	emitter := events.NewEmitter(logger)
	metrics.RegisterEventHandler(emitter)

	rem := remediation.New(remediation.Config{
		MemoryThreshold: cfg.Health.MemoryThreshold,
		DiskThreshold:   cfg.Health.DiskThreshold,
		MaxFileAge:      cfg.Health.CleanupMaxFileAge,
		CleanupDirs:     cfg.Container.CleanupDirectories,
	}, st.dbs, logger)

	opts := []lifecycle.Option{
		lifecycle.WithEmitter(emitter),
		lifecycle.WithProber(st.monitor),
		lifecycle.WithRemediator(rem),
		lifecycle.WithDependencySource(st.orchestrator),
		lifecycle.WithConfigLoader(func() error {
			_, err := config.Load(configPath)
			return err
		}),
		lifecycle.WithStateObserver(func(s lifecycle.State) {
			metrics.SetState(string(s), lifecycle.StateNames())
		}),
	}

	if cfg.Docker.Enabled {
		inspector, err := container.NewInspector(logger)
		if err != nil {
			logger.Warn("docker inspection disabled", "error", err)
		} else {
			opts = append(opts, lifecycle.WithDescriber(inspector))
		}
	}

	mgr, err := lifecycle.New(cfg, logger, opts...)
	if err != nil {
		st.dbs.Close()
		return err
	}
	defer mgr.Close()

	// Drained after the run group so shutdown_completed is still delivered.
	alerter := alerts.NewWebhookAlerter(cfg.Webhooks, logger)
	alerter.RegisterEventHandler(emitter)
	defer alerter.Close()

	if cfg.Hermes.Enabled {
		hc, err := hermes.Connect(cfg.Hermes.Config, mgr.ContainerID(), logger)
		if err != nil {
			logger.Warn("hermes unavailable, lifecycle events stay local", "error", err)
		} else {
			provisionCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := hc.ProvisionStreams(provisionCtx); err != nil {
				logger.Warn("failed to provision hermes streams", "error", err)
			}
			cancel()
			emitter.OnEvent(hc.Handler())
			// Closed after the run group so shutdown_completed is still published.
			defer hc.Close()
		}
	}

	checks, err := probes.FromConfig(cfg.Dependencies, &http.Client{})
	if err != nil {
		st.dbs.Close()
		return err
	}
	// Registered checks replace the defaults, so keep the database and server
	// checks in front of the configured ones.
	if len(checks) > 0 {
		checks = append(st.orchestrator.DefaultDependencyChecks(), checks...)
	}
	for _, c := range checks {
		mgr.AddDependencyCheck(c)
	}
	mgr.RegisterCleanupHandler("databases", st.dbs.Close)

	mgr.HandleSignals(ctx)

	srv := &http.Server{
		Addr:        cfg.Listen,
		Handler:     admin.NewServer(mgr, st.orchestrator, emitter, cfg.AdminToken, logger).Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, mgr.RequestShutdown)
	defer stop()

	g.Go(func() error {
		logger.Info("admin API starting", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("admin API shutdown error", "error", err)
			}
		}()
		return supervise(gctx, mgr, cfg, logger)
	})

	return g.Wait()
}

func restartable(err error) bool {
	return errors.Is(err, lifecycle.ErrValidation) ||
		errors.Is(err, lifecycle.ErrDependencyUnavailable) ||
		errors.Is(err, lifecycle.ErrUnhealthy)
}

// supervise drives the container through startup, restarts, monitoring and
// shutdown, then exports the lifecycle report.
func supervise(ctx context.Context, mgr *lifecycle.Manager, cfg *config.Config, logger *slog.Logger) error {
	err := mgr.Startup(ctx)
	for err != nil && restartable(err) && !mgr.ShutdownRequested() && mgr.ShouldRestart() {
		logger.Warn("startup failed, attempting restart", "error", err, "restart_count", mgr.RestartCount())
		err = mgr.AttemptRestart(ctx)
	}

	if err == nil {
		mgr.StartHealthMonitoring(ctx)
		<-mgr.Done()
	} else {
		logger.Error("container failed to start", "error", err)
	}

	if mgr.GracefulShutdown(context.Background(), cfg.Shutdown.Timeout) {
		logger.Info("graceful shutdown completed")
	} else {
		logger.Warn("shutdown did not complete gracefully")
	}

	if cfg.Shutdown.ReportPath != "" {
		if exportErr := mgr.ExportReport(context.Background(), cfg.Shutdown.ReportPath); exportErr != nil && err == nil {
			err = exportErr
		}
	}
	return err
}
