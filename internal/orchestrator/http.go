package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"lifeguard/internal/health"
	"lifeguard/internal/retry"
)

// endpointResult is the outcome of one GET against a health endpoint.
type endpointResult struct {
	StatusCode int
	Ready      bool
}

// getEndpoint issues one GET. Any response is returned without error; only
// transport failures are errors. Ready is set when the body is JSON with
// status "ready".
func (o *Orchestrator) getEndpoint(ctx context.Context, url string, timeout time.Duration) (endpointResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return endpointResult{}, fmt.Errorf("create health request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return endpointResult{}, fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	res := endpointResult{StatusCode: resp.StatusCode}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		res.Ready = body.Status == "ready"
	}
	return res, nil
}

// probeService checks an HTTP health endpoint, retrying up to attempts times.
// Status 200 is healthy regardless of body.
func (o *Orchestrator) probeService(ctx context.Context, url string, timeout time.Duration, attempts int) health.HealthStatus {
	start := o.clock.Now()
	var last endpointResult

	err := retry.Attempts(ctx, o.clock, attempts, o.retryDelay, func(ctx context.Context) error {
		res, err := o.getEndpoint(ctx, url, timeout)
		if err != nil {
			return err
		}
		last = res
		if res.StatusCode != http.StatusOK {
			return fmt.Errorf("health check returned status %d", res.StatusCode)
		}
		return nil
	})

	hs := health.HealthStatus{
		Details:       map[string]any{"endpoint": url},
		Timestamp:     o.clock.Now(),
		CheckDuration: o.clock.Since(start),
	}
	if last.StatusCode != 0 {
		hs.Details["status_code"] = last.StatusCode
	}
	if err != nil {
		hs.Status = health.StatusUnhealthy
		hs.Message = err.Error()
		return hs
	}
	hs.Status = health.StatusHealthy
	hs.Message = "service is healthy"
	hs.Details["ready"] = last.Ready
	return hs
}
