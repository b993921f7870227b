package probes

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"lifeguard/internal/config"
	"lifeguard/internal/database"
	"lifeguard/internal/health"
)

func TestHTTP(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ok.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer bad.Close()

	ctx := context.Background()
	if !HTTP(http.DefaultClient, ok.URL)(ctx) {
		t.Error("expected 204 to be ready")
	}
	if HTTP(http.DefaultClient, bad.URL)(ctx) {
		t.Error("expected 503 to be not ready")
	}
}

func TestTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	if !TCP(addr, time.Second)(context.Background()) {
		t.Error("expected listening address to be ready")
	}
	ln.Close()
	if TCP(addr, 200*time.Millisecond)(context.Background()) {
		t.Error("expected closed address to be not ready")
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	if !Redis(mr.Addr(), "", time.Second)(context.Background()) {
		t.Error("expected miniredis to answer PING")
	}

	mr.RequireAuth("secret")
	if Redis(mr.Addr(), "wrong", time.Second)(context.Background()) {
		t.Error("expected wrong password to fail")
	}
	if !Redis(mr.Addr(), "secret", time.Second)(context.Background()) {
		t.Error("expected correct password to succeed")
	}

	if Redis("127.0.0.1:1", "", 200*time.Millisecond)(context.Background()) {
		t.Error("expected unreachable server to fail")
	}
}

type statusDB struct{ status health.Status }

func (s statusDB) Name() string                                { return "db" }
func (s statusDB) HealthCheck(context.Context) database.Health { return database.Health{Status: s.status} }
func (s statusDB) CloseConnections() error                     { return nil }
func (s statusDB) Close() error                                { return nil }

func TestDatabase(t *testing.T) {
	if !Database(statusDB{health.StatusHealthy})(context.Background()) {
		t.Error("healthy database should be ready")
	}
	if Database(statusDB{health.StatusDegraded})(context.Background()) {
		t.Error("degraded database should not be ready")
	}
}

func TestFromConfig(t *testing.T) {
	deps := []config.Dependency{
		{Name: "api", Type: "http", Address: "http://localhost", Timeout: time.Minute, RetryInterval: 2 * time.Second, Required: true},
		{Name: "queue", Type: "tcp", Address: "localhost:5672", Timeout: time.Minute, RetryInterval: 2 * time.Second},
		{Name: "cache", Type: "redis", Address: "localhost:6379", Timeout: time.Minute, RetryInterval: 2 * time.Second, Description: "session cache"},
	}
	checks, err := FromConfig(deps, http.DefaultClient)
	if err != nil {
		t.Fatal(err)
	}
	if len(checks) != 3 {
		t.Fatalf("checks = %d, want 3", len(checks))
	}
	if !checks[0].Required || checks[1].Required {
		t.Error("required flags not carried over")
	}
	if checks[2].Description != "session cache" || checks[2].Timeout != time.Minute {
		t.Errorf("checks[2] = %+v", checks[2])
	}

	_, err = FromConfig([]config.Dependency{{Name: "x", Type: "amqp"}}, http.DefaultClient)
	if err == nil {
		t.Error("expected error for unsupported type")
	}
}
