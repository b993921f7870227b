package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/heptiolabs/healthcheck"

	"lifeguard/internal/events"
	"lifeguard/internal/health"
	"lifeguard/internal/lifecycle"
	"lifeguard/internal/metrics"
)

// Lifecycle is the view of the lifecycle manager the admin API needs.
type Lifecycle interface {
	State() lifecycle.State
	Report(ctx context.Context) lifecycle.Report
}

// ServiceValidator aggregates dependency health.
type ServiceValidator interface {
	ValidateServiceHealth(ctx context.Context) health.ServiceHealthStatus
}

// Server is the status API of the container.
type Server struct {
	lifecycle Lifecycle
	services  ServiceValidator
	events    *events.Emitter
	probes    healthcheck.Handler
	authToken string
	logger    *slog.Logger
}

// NewServer creates a new admin server. services may be nil.
func NewServer(lc Lifecycle, services ServiceValidator, emitter *events.Emitter, authToken string, logger *slog.Logger) *Server {
	l := logger.With("component", "admin")
	if authToken == "" {
		l.Warn("admin API has no auth token configured, all requests will be allowed")
	}

	probes := healthcheck.NewHandler()
	probes.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))
	probes.AddReadinessCheck("lifecycle-running", func() error {
		if st := lc.State(); st != lifecycle.StateRunning {
			return fmt.Errorf("container is %s", st)
		}
		return nil
	})

	return &Server{
		lifecycle: lc,
		services:  services,
		events:    emitter,
		probes:    probes,
		authToken: authToken,
		logger:    l,
	}
}

// Handler returns an http.Handler for the admin API. Probe and metrics
// endpoints are never behind the auth token.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/status", s.handleStatus)
	api.HandleFunc("/services", s.handleServices)
	api.HandleFunc("/events", s.handleSSE)

	mux := http.NewServeMux()
	mux.Handle("/live", s.probes)
	mux.Handle("/ready", s.probes)
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", s.authMiddleware(api))
	return mux
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			auth := r.Header.Get("Authorization")
			if auth != "Bearer "+s.authToken {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.lifecycle.Report(r.Context()))
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.services == nil {
		writeJSON(w, http.StatusOK, health.ServiceHealthStatus{})
		return
	}

	status := s.services.ValidateServiceHealth(r.Context())
	code := http.StatusOK
	if status.Overall == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleSSE streams lifecycle records as server-sent events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ch := make(chan events.Record, 64)
	id := s.events.OnEvent(func(rec events.Record) {
		select {
		case ch <- rec:
		default: // drop if client is slow
		}
	})
	defer s.events.RemoveHandler(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case rec := <-ch:
			data, _ := json.Marshal(rec)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", rec.Kind, data)
			flusher.Flush()
		}
	}
}
