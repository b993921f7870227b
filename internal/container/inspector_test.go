package container

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
)

type fakeInspect struct {
	info types.ContainerJSON
	err  error
}

func (f fakeInspect) ContainerInspect(context.Context, string) (types.ContainerJSON, error) {
	return f.info, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDescribe(t *testing.T) {
	info := types.ContainerJSON{
		ContainerJSONBase: &types.ContainerJSONBase{
			ID:           "abc123",
			Name:         "/flow-worker",
			RestartCount: 2,
			State: &types.ContainerState{
				Status:    "running",
				StartedAt: "2026-03-01T12:00:00Z",
			},
		},
		Config: &container.Config{Image: "flows:1.4", Labels: map[string]string{"flow": "billing"}},
	}
	i := &Inspector{docker: fakeInspect{info: info}, logger: quietLogger()}

	got, err := i.Describe(context.Background(), "abc123")
	if err != nil {
		t.Fatal(err)
	}
	if got["name"] != "flow-worker" {
		t.Errorf("name = %v", got["name"])
	}
	if got["image"] != "flows:1.4" || got["status"] != "running" {
		t.Errorf("describe = %v", got)
	}
	if got["restart_count"] != 2 {
		t.Errorf("restart_count = %v", got["restart_count"])
	}
}

func TestDescribeError(t *testing.T) {
	i := &Inspector{docker: fakeInspect{err: errors.New("no such container")}, logger: quietLogger()}
	if _, err := i.Describe(context.Background(), "x"); err == nil {
		t.Error("expected error")
	}
}
