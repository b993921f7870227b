package events

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testEmitter() *Emitter {
	return NewEmitter(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestEmitCallsAllHandlers(t *testing.T) {
	e := testEmitter()
	var calls [2]int
	e.OnEvent(func(Record) { calls[0]++ })
	e.OnEvent(func(Record) { calls[1]++ })
	e.Emit(Record{Kind: StartupInitiated, ContainerID: "c"})
	if calls[0] != 1 || calls[1] != 1 {
		t.Errorf("expected both handlers called once, got %v", calls)
	}
}

func TestEmitCorrectFields(t *testing.T) {
	e := testEmitter()
	var got Record
	e.OnEvent(func(rec Record) { got = rec })
	e.Emit(Record{Kind: StartupCompleted, ContainerID: "c1", Details: map[string]any{"k": "v"}}.WithDuration(1500 * time.Millisecond))
	if got.Kind != StartupCompleted || got.ContainerID != "c1" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Details["k"] != "v" {
		t.Errorf("details mismatch: %v", got.Details)
	}
	if got.DurationMs == nil || *got.DurationMs != 1500 {
		t.Errorf("duration = %v, want 1500", got.DurationMs)
	}
	if got.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestRemoveHandler(t *testing.T) {
	e := testEmitter()
	calls := 0
	id := e.OnEvent(func(Record) { calls++ })
	e.RemoveHandler(id)
	e.Emit(Record{Kind: HealthCheckFailed})
	if calls != 0 {
		t.Errorf("removed handler called %d times", calls)
	}
}

func TestEmitNoHandlersNoPanic(t *testing.T) {
	e := testEmitter()
	e.Emit(Record{Kind: ShutdownCompleted})
}

func TestHistoryAppendOnly(t *testing.T) {
	var h History
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Append(Record{Kind: HealthCheckFailed})
		}()
	}
	wg.Wait()
	h.Append(Record{Kind: RecoveryCompleted})

	if h.Len() != 51 {
		t.Errorf("len = %d, want 51", h.Len())
	}
	if h.Count(HealthCheckFailed) != 50 {
		t.Errorf("count = %d, want 50", h.Count(HealthCheckFailed))
	}

	snap := h.Snapshot()
	snap[0].Kind = StartupInitiated
	if h.Snapshot()[0].Kind != HealthCheckFailed {
		t.Error("snapshot mutation leaked into history")
	}
	if snap[len(snap)-1].Kind != RecoveryCompleted {
		t.Error("append order not preserved")
	}
}
