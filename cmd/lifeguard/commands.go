package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lifeguard/internal/health"
)

func waitCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until every configured database and service is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			st, err := newStack(context.Background(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.dbs.Close()

			if timeout == 0 {
				timeout = cfg.Health.DependencyTimeout
			}
			if !st.orchestrator.WaitForAllDependencies(context.Background(), timeout) {
				return fmt.Errorf("dependencies not ready after %s", timeout)
			}
			fmt.Println("OK")
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall wait budget (default health.dependency_timeout)")
	return cmd
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one comprehensive health check and exit non-zero when unhealthy",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(logger)
			if err != nil {
				return err
			}
			st, err := newStack(context.Background(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.dbs.Close()

			report := st.monitor.ComprehensiveHealthCheck(context.Background())
			if err := printReport(os.Stdout, report); err != nil {
				return err
			}
			if report.Status == health.StatusUnhealthy {
				return fmt.Errorf("container is unhealthy")
			}
			return nil
		},
	}
}

func printReport(w io.Writer, report health.Report) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "OVERALL\t%s\n\n", report.Status)
	fmt.Fprintln(tw, "NAME\tKIND\tSTATUS\tMESSAGE")
	for _, name := range names {
		c := report.Checks[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, c.Kind, c.Status, c.Message)
	}
	return tw.Flush()
}

func getAdminURL() string {
	if adminURL != "" {
		return strings.TrimRight(adminURL, "/")
	}
	if v := os.Getenv("LIFEGUARD_ADMIN"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:9090"
}

func getAdminToken() string {
	if adminToken != "" {
		return adminToken
	}
	return os.Getenv("LIFEGUARD_ADMIN_TOKEN")
}

func apiRequest(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, getAdminURL()+path, nil)
	if err != nil {
		return nil, err
	}
	if tok := getAdminToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return http.DefaultClient.Do(req)
}

// apiGet returns the body of a successful admin API response. A 503 from
// /services still carries a body worth printing, so it is returned with err.
func apiGet(path string) ([]byte, error) {
	resp, err := apiRequest(path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return body, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the lifecycle report of a running container",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := apiGet("/status")
			if err != nil {
				return err
			}
			if format == "json" {
				fmt.Println(string(data))
				return nil
			}
			return printStatus(os.Stdout, data)
		},
	}
}

func printStatus(w io.Writer, data []byte) error {
	var report struct {
		ContainerInfo struct {
			ID           string `json:"container_id"`
			FlowName     string `json:"flow_name"`
			State        string `json:"state"`
			RestartCount int    `json:"current_restart_count"`
		} `json:"container_info"`
		Metrics struct {
			StartupCount        int     `json:"startup_count"`
			RestartCount        int     `json:"restart_count"`
			HealthCheckFailures int     `json:"health_check_failures"`
			TotalUptimeSeconds  float64 `json:"total_uptime_seconds"`
		} `json:"metrics"`
		EventHistory []struct {
			Event     string    `json:"event"`
			Timestamp time.Time `json:"timestamp"`
		} `json:"event_history"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	uptime := time.Duration(report.Metrics.TotalUptimeSeconds) * time.Second
	fmt.Fprintf(w, "Container %s\n", report.ContainerInfo.ID)
	if report.ContainerInfo.FlowName != "" {
		fmt.Fprintf(w, "  Flow:      %s\n", report.ContainerInfo.FlowName)
	}
	fmt.Fprintf(w, "  State:     %s\n", report.ContainerInfo.State)
	fmt.Fprintf(w, "  Uptime:    %s\n", uptime)
	fmt.Fprintf(w, "  Startups:  %d\n", report.Metrics.StartupCount)
	fmt.Fprintf(w, "  Restarts:  %d (%d in window)\n", report.Metrics.RestartCount, report.ContainerInfo.RestartCount)
	fmt.Fprintf(w, "  Failures:  %d consecutive\n", report.Metrics.HealthCheckFailures)
	if n := len(report.EventHistory); n > 0 {
		last := report.EventHistory[n-1]
		fmt.Fprintf(w, "  Last event: %s at %s\n", last.Event, last.Timestamp.Format(time.RFC3339))
	}
	return nil
}

func servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "Show dependency health as seen by a running container",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := apiGet("/services")
			if data == nil {
				return err
			}
			if format == "json" {
				fmt.Println(string(data))
				return err
			}
			var status health.ServiceHealthStatus
			if jsonErr := json.Unmarshal(data, &status); jsonErr != nil {
				return fmt.Errorf("decode services: %w", jsonErr)
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "OVERALL\t%s\n\n", status.Overall)
			fmt.Fprintln(tw, "NAME\tTYPE\tSTATUS\tMESSAGE")
			writeEntities(tw, "database", status.Databases)
			writeEntities(tw, "service", status.Services)
			if flushErr := tw.Flush(); flushErr != nil {
				return flushErr
			}
			return err
		},
	}
}

func writeEntities(w io.Writer, kind string, m map[string]health.HealthStatus) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, kind, m[name].Status, m[name].Message)
	}
}

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Stream lifecycle events from a running container (SSE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := apiRequest("/events")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			scanner := bufio.NewScanner(resp.Body)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "data: ") {
					fmt.Println(line[6:])
				}
			}
			return scanner.Err()
		},
	}
}
