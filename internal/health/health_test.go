package health

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestStatusString(t *testing.T) {
	cases := map[Status]string{
		StatusHealthy:   "healthy",
		StatusDegraded:  "degraded",
		StatusUnhealthy: "unhealthy",
		Status(42):      "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("Status(%d).String() = %q, want %q", int(s), s.String(), want)
		}
	}
}

func TestParseStatusUnknown(t *testing.T) {
	if _, err := ParseStatus("ready"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestWorst(t *testing.T) {
	if Worst(StatusHealthy, StatusDegraded) != StatusDegraded {
		t.Error("degraded should beat healthy")
	}
	if Worst(StatusUnhealthy, StatusDegraded) != StatusUnhealthy {
		t.Error("unhealthy should beat degraded")
	}
}

func TestHealthStatusJSON(t *testing.T) {
	hs := HealthStatus{
		Status:        StatusDegraded,
		Message:       "slow",
		Timestamp:     time.Unix(0, 0).UTC(),
		CheckDuration: 1500 * time.Millisecond,
	}
	data, err := json.Marshal(hs)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, `"status":"degraded"`) {
		t.Errorf("missing status: %s", s)
	}
	if !strings.Contains(s, `"check_duration_ms":1500`) {
		t.Errorf("missing duration ms: %s", s)
	}
}
