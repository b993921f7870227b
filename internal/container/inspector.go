// Package container reads the runtime view of the current container from the
// Docker engine.
package container

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

type inspectAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
}

// Inspector describes containers through the Docker API.
type Inspector struct {
	docker inspectAPI
	logger *slog.Logger
}

// NewInspector connects to the engine configured by the DOCKER_* environment.
func NewInspector(logger *slog.Logger) (*Inspector, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Inspector{docker: cli, logger: logger.With("component", "docker")}, nil
}

// Describe returns the name, image, status and restart count of container id.
func (i *Inspector) Describe(ctx context.Context, id string) (map[string]any, error) {
	info, err := i.docker.ContainerInspect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("inspect container %q: %w", id, err)
	}

	out := map[string]any{}
	if info.ContainerJSONBase != nil {
		out["id"] = info.ID
		// Docker prefixes names with /
		out["name"] = strings.TrimPrefix(info.Name, "/")
		out["restart_count"] = info.RestartCount
		if st := info.State; st != nil {
			out["status"] = st.Status
			out["started_at"] = st.StartedAt
			out["oom_killed"] = st.OOMKilled
			if st.Health != nil {
				out["docker_health"] = st.Health.Status
			}
		}
	}
	if info.Config != nil {
		out["image"] = info.Config.Image
		out["labels"] = info.Config.Labels
	}
	return out, nil
}
