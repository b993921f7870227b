// Package alerts forwards lifecycle records to HTTP webhooks.
package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"lifeguard/internal/config"
	"lifeguard/internal/events"
)

type webhook struct {
	url     string
	kinds   map[events.Kind]bool
	headers map[string]string
}

func (w webhook) matches(kind events.Kind) bool {
	return len(w.kinds) == 0 || w.kinds[kind]
}

// WebhookAlerter posts matching records to each configured webhook.
type WebhookAlerter struct {
	hooks  []webhook
	client *http.Client
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func NewWebhookAlerter(cfgs []config.Webhook, logger *slog.Logger) *WebhookAlerter {
	hooks := make([]webhook, 0, len(cfgs))
	for _, c := range cfgs {
		h := webhook{url: c.URL, headers: c.Headers}
		if len(c.Events) > 0 {
			h.kinds = make(map[events.Kind]bool, len(c.Events))
			for _, k := range c.Events {
				h.kinds[events.Kind(k)] = true
			}
		}
		hooks = append(hooks, h)
	}
	return &WebhookAlerter{
		hooks:  hooks,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With("component", "alerts"),
	}
}

// RegisterEventHandler subscribes the alerter to emitter. Deliveries run in
// their own goroutine so a slow receiver never blocks the emitter.
func (a *WebhookAlerter) RegisterEventHandler(emitter *events.Emitter) {
	if len(a.hooks) == 0 {
		return
	}
	emitter.OnEvent(func(rec events.Record) {
		a.mu.Lock()
		defer a.mu.Unlock()
		if a.closed {
			return
		}
		for _, h := range a.hooks {
			if h.matches(rec.Kind) {
				a.inflight.Add(1)
				go func() {
					defer a.inflight.Done()
					a.send(h, rec)
				}()
			}
		}
	})
}

// Close stops accepting records and waits for in-flight deliveries, each of
// which is bounded by the client timeout.
func (a *WebhookAlerter) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.inflight.Wait()
}

func (a *WebhookAlerter) send(h webhook, rec events.Record) {
	if err := a.post(h, rec); err != nil {
		a.logger.Warn("webhook delivery failed", "url", h.url, "event", rec.Kind, "error", err)
	}
}

func (a *WebhookAlerter) post(h webhook, rec events.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, h.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
