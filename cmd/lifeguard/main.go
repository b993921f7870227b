package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lifeguard/internal/config"
)

var (
	configPath string
	logLevel   string
	adminURL   string
	adminToken string
	format     string
)

func main() {
	root := &cobra.Command{
		Use:           "lifeguard",
		Short:         "Lifeguard supervises the lifecycle of a workflow container",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "./lifeguard.yaml", "path to config file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&adminURL, "admin", "", "admin API URL (default http://localhost:9090)")
	root.PersistentFlags().StringVar(&adminToken, "token", "", "admin API bearer token (default $LIFEGUARD_ADMIN_TOKEN)")
	root.PersistentFlags().StringVar(&format, "format", "table", "output format: table or json")

	configCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	configCmd.AddCommand(configValidateCmd())

	root.AddCommand(
		runCmd(),
		waitCmd(),
		checkCmd(),
		statusCmd(),
		servicesCmd(),
		eventsCmd(),
		configCmd,
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

func newLogger() (*slog.Logger, error) {
	lvl, err := parseLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	logger.Info("config loaded",
		"path", configPath,
		"databases", len(cfg.Databases),
		"services", len(cfg.Services),
		"dependencies", len(cfg.Dependencies),
		"listen", cfg.Listen,
	)
	return cfg, nil
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}
			fmt.Println("OK")
			return nil
		},
	}
}
