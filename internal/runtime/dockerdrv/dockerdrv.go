// Package dockerdrv implements the runtime contract on top of a Docker
// container. One labeled container is the live instance; booting while
// any labeled container is still running is refused, which is also how
// zombie instances left behind by a crashed daemon are detected.
package dockerdrv

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	"github.com/google/uuid"

	"github.com/m-voss/devcell/internal/config"
	"github.com/m-voss/devcell/internal/runtime"
)

const (
	labelPrefix  = "devcell."
	workspaceDir = "/workspace"
)

type Driver struct {
	docker *client.Client
	cfg    config.DockerConfig
	run    config.RunConfig
	logger *slog.Logger
}

func New(cfg config.DockerConfig, run config.RunConfig, logger *slog.Logger) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &Driver{docker: cli, cfg: cfg, run: run, logger: logger}, nil
}

// Ping verifies the Docker daemon is reachable.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.docker.Ping(ctx)
	return err
}

func (d *Driver) Close() error {
	return d.docker.Close()
}

// Boot creates and starts the runtime container. Any labeled container
// still running anywhere on the host means a live instance exists, so
// the boot is refused with the single-instance signature regardless of
// who started it.
func (d *Driver) Boot(ctx context.Context) (runtime.Handle, error) {
	running, err := d.listManaged(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("check for live instances: %w", err)
	}
	if len(running) > 0 {
		return nil, fmt.Errorf("container %s is live: %w", running[0], runtime.ErrSingleInstance)
	}

	instanceID := uuid.NewString()[:8]
	labels := map[string]string{
		labelPrefix + "instance_id": instanceID,
		labelPrefix + "managed":     "true",
	}

	ports, portBindings, err := d.portMappings()
	if err != nil {
		return nil, err
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory: int64(d.cfg.MemLimitMB) * units.MiB,
		},
		NetworkMode:  container.NetworkMode(d.cfg.NetworkMode),
		PortBindings: portBindings,
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeTmpfs,
				Target: "/tmp",
				TmpfsOptions: &mount.TmpfsOptions{
					SizeBytes: 512 * units.MiB,
				},
			},
		},
	}

	containerCfg := &container.Config{
		Image:        d.cfg.Image,
		Labels:       labels,
		WorkingDir:   workspaceDir,
		ExposedPorts: ports,
		// Keep the container alive; all work happens through execs.
		Cmd: []string{"sleep", "infinity"},
	}

	resp, err := d.docker.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "devcell-"+instanceID)
	if err != nil {
		return nil, fmt.Errorf("container create: %w", err)
	}

	if err := d.docker.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		d.docker.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("container start: %w", err)
	}

	d.logger.Info("runtime container booted", "instance_id", instanceID, "container_id", resp.ID[:12])
	return newHandle(d, instanceID, resp.ID), nil
}

func (d *Driver) listManaged(ctx context.Context, runningOnly bool) ([]string, error) {
	f := filters.NewArgs()
	f.Add("label", labelPrefix+"managed=true")
	if runningOnly {
		f.Add("status", "running")
	}
	containers, err := d.docker.ContainerList(ctx, container.ListOptions{
		All:     !runningOnly,
		Filters: f,
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(containers))
	for i, ctr := range containers {
		ids[i] = ctr.ID
	}
	return ids, nil
}

// portMappings publishes the configured dev-server port range 1:1 onto
// the host so preview URLs work without inspecting the container.
func (d *Driver) portMappings() (nat.PortSet, nat.PortMap, error) {
	lo, hi, err := parsePortRange(d.cfg.PortRange)
	if err != nil {
		return nil, nil, err
	}
	ports := nat.PortSet{}
	bindings := nat.PortMap{}
	for p := lo; p <= hi; p++ {
		port, err := nat.NewPort("tcp", strconv.Itoa(p))
		if err != nil {
			return nil, nil, err
		}
		ports[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{
			HostIP:   d.run.Host,
			HostPort: strconv.Itoa(p),
		}}
	}
	return ports, bindings, nil
}

func parsePortRange(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		p, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, 0, fmt.Errorf("invalid port range %q", s)
		}
		return p, p, nil
	}
	start, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid port range %q", s)
	}
	end, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil || end < start {
		return 0, 0, fmt.Errorf("invalid port range %q", s)
	}
	return start, end, nil
}
