package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/nstogner/arena/pkg/backend"
)

const (
	DefaultImage = "ollama/ollama:latest"
	ServerPort   = "11434"
	// CacheVolume keeps pulled model weights across containers.
	CacheVolume = "arena-ollama"
)

// Manager implements backend.Manager using Ollama containers.
type Manager struct {
	cli    *client.Client
	image  string
	http   *http.Client
	health time.Duration
}

// Ensure Manager implements backend.Manager
var _ backend.Manager = (*Manager)(nil)

type Option func(*Manager)

// WithImage overrides the runtime image.
func WithImage(image string) Option {
	return func(m *Manager) { m.image = image }
}

// New creates a new Manager.
func New(opts ...Option) (*Manager, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	m := &Manager{
		cli:    cli,
		image:  DefaultImage,
		http:   http.DefaultClient,
		health: 2 * time.Minute,
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

func (m *Manager) Close() error {
	return m.cli.Close()
}

func (m *Manager) containerName(name string) string {
	return fmt.Sprintf("arena-backend-%s", name)
}

func (m *Manager) Endpoint(ctx context.Context, name string) (string, error) {
	port, err := m.ensureRunning(ctx, name)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://127.0.0.1:%s/v1", port), nil
}

// Pull downloads model into the named runtime, starting it if needed.
func (m *Manager) Pull(ctx context.Context, name, model string) error {
	port, err := m.ensureRunning(ctx, name)
	if err != nil {
		return err
	}
	return m.pull(ctx, name, port, model)
}

func (m *Manager) pull(ctx context.Context, name, port, model string) error {
	body, _ := json.Marshal(map[string]any{
		"model":  model,
		"stream": false,
	})
	url := fmt.Sprintf("http://127.0.0.1:%s/api/pull", port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Info("Pulling model", "backend", name, "model", model)
	resp, err := m.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull %s: status %d: %s", model, resp.StatusCode, string(msg))
	}
	return nil
}

func (m *Manager) Stop(ctx context.Context, name string) error {
	return m.cli.ContainerRemove(ctx, m.containerName(name), types.ContainerRemoveOptions{
		Force: true,
	})
}

// ensureRunning checks if the container is running, starts it if not, and returns the host port.
func (m *Manager) ensureRunning(ctx context.Context, name string) (string, error) {
	cname := m.containerName(name)

	c, err := m.cli.ContainerInspect(ctx, cname)
	if err != nil {
		if client.IsErrNotFound(err) {
			return m.createAndStart(ctx, name)
		}
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}

	if !c.State.Running {
		if err := m.cli.ContainerStart(ctx, cname, types.ContainerStartOptions{}); err != nil {
			return "", fmt.Errorf("failed to start container: %w", err)
		}
		// Inspect again to get port
		c, err = m.cli.ContainerInspect(ctx, cname)
		if err != nil {
			return "", err
		}
	}

	port, err := getPort(c)
	if err != nil {
		return "", err
	}
	if err := m.waitForHealth(ctx, port); err != nil {
		return "", err
	}
	return port, nil
}

func (m *Manager) ensureImage(ctx context.Context) error {
	if _, _, err := m.cli.ImageInspectWithRaw(ctx, m.image); err == nil {
		return nil
	}
	slog.Info("Pulling backend image", "image", m.image)
	rc, err := m.cli.ImagePull(ctx, m.image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %q: %w", m.image, err)
	}
	defer rc.Close()
	// The pull only completes once the progress stream is drained.
	_, err = io.Copy(io.Discard, rc)
	return err
}

func (m *Manager) createAndStart(ctx context.Context, name string) (string, error) {
	if err := m.ensureImage(ctx); err != nil {
		return "", err
	}

	cfg := &container.Config{
		Image: m.image,
		ExposedPorts: nat.PortSet{
			nat.Port(ServerPort + "/tcp"): {},
		},
		Labels: map[string]string{"arena.backend": name},
	}

	hostCfg := &container.HostConfig{
		Binds: []string{CacheVolume + ":/root/.ollama"},
		PortBindings: nat.PortMap{
			nat.Port(ServerPort + "/tcp"): []nat.PortBinding{
				{
					HostIP:   "127.0.0.1",
					HostPort: "0",
				},
			},
		},
	}

	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, m.containerName(name))
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	c, err := m.cli.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return "", err
	}
	port, err := getPort(c)
	if err != nil {
		return "", err
	}

	if err := m.waitForHealth(ctx, port); err != nil {
		return "", err
	}
	slog.Info("Backend started", "backend", name, "port", port)
	return port, nil
}

func getPort(c types.ContainerJSON) (string, error) {
	if c.NetworkSettings != nil {
		ports := c.NetworkSettings.Ports[nat.Port(ServerPort+"/tcp")]
		if len(ports) > 0 {
			return ports[0].HostPort, nil
		}
	}
	return "", fmt.Errorf("container running but port not mapped")
}

func (m *Manager) waitForHealth(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/api/tags", port)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	timeoutCtx, cancel := context.WithTimeout(ctx, m.health)
	defer cancel()

	for {
		select {
		case <-timeoutCtx.Done():
			return fmt.Errorf("timeout waiting for backend health")
		case <-ticker.C:
			req, err := http.NewRequestWithContext(timeoutCtx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := m.http.Do(req)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}
