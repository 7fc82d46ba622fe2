package compute

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Environment variables a kernel container reads its job from
const (
	EnvKind      = "OBSCURA_KIND"
	EnvInputFile = "OBSCURA_INPUT_FILE"
)

// InputPath is where the encrypted input is copied before the kernel starts.
// Inputs can be far larger than the environment allows.
const InputPath = "/obscura/input"

// containerAPI is the subset of the Docker client the engine drives
type containerAPI interface {
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	CopyToContainer(ctx context.Context, containerID, dstPath string, content io.Reader, options types.CopyToContainerOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerConfig holds Docker engine configuration
type DockerConfig struct {
	// Image runs every kind unless Images names a kind-specific one
	Image    string
	Images   map[domain.ComputationKind]string
	MemoryMB int64
	NanoCPUs int64
	Logger   *slog.Logger
}

// DockerEngine runs each computation in a throwaway container with no
// network. The input is copied into the container as a file before it starts
// and the result is read from the container's stdout.
type DockerEngine struct {
	api    containerAPI
	config DockerConfig
	logger *slog.Logger
}

// NewDockerEngine connects to the Docker daemon from the environment
func NewDockerEngine(cfg DockerConfig) (*DockerEngine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newDockerEngine(cli, cfg)
}

func newDockerEngine(api containerAPI, cfg DockerConfig) (*DockerEngine, error) {
	if cfg.Image == "" && len(cfg.Images) == 0 {
		return nil, fmt.Errorf("docker engine needs an image")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DockerEngine{api: api, config: cfg, logger: logger}, nil
}

func (e *DockerEngine) Name() string {
	return "docker"
}

func (e *DockerEngine) imageFor(kind domain.ComputationKind) string {
	if img, ok := e.config.Images[kind]; ok && img != "" {
		return img
	}
	return e.config.Image
}

func (e *DockerEngine) Compute(ctx context.Context, kind domain.ComputationKind, encryptedInput []byte) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownComputationKind, kind)
	}
	image := e.imageFor(kind)
	if image == "" {
		return nil, fmt.Errorf("%w: no image for kind %s", domain.ErrComputationFailed, kind)
	}

	cfg := &container.Config{
		Image: image,
		Env: []string{
			EnvKind + "=" + string(kind),
			EnvInputFile + "=" + InputPath,
		},
		Labels: map[string]string{"obscura.kind": string(kind)},
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   e.config.MemoryMB * 1024 * 1024,
			NanoCPUs: e.config.NanoCPUs,
		},
	}

	created, err := e.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("%w: create container: %v", domain.ErrComputationFailed, err)
	}
	defer e.remove(created.ID)

	archive, err := inputArchive(encryptedInput)
	if err != nil {
		return nil, fmt.Errorf("%w: pack input: %v", domain.ErrComputationFailed, err)
	}
	if err := e.api.CopyToContainer(ctx, created.ID, "/", archive, types.CopyToContainerOptions{}); err != nil {
		return nil, fmt.Errorf("%w: copy input: %v", domain.ErrComputationFailed, err)
	}

	if err := e.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("%w: start container: %v", domain.ErrComputationFailed, err)
	}

	statusCh, errCh := e.api.ContainerWait(ctx, created.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, fmt.Errorf("%w: wait container: %v", domain.ErrComputationFailed, err)
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("%w: wait container: %s", domain.ErrComputationFailed, status.Error.Message)
		}
		exitCode = status.StatusCode
	}

	stdout, stderr, err := e.output(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: read output: %v", domain.ErrComputationFailed, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%w: kernel exited with %d: %s", domain.ErrComputationFailed, exitCode, strings.TrimSpace(stderr))
	}

	result := bytes.TrimRight(stdout, "\r\n")
	e.logger.Debug("Kernel container finished",
		slog.String("container_id", created.ID),
		slog.String("image", image),
		slog.Int("stdout_size", len(result)),
	)
	return result, nil
}

// inputArchive wraps the input in a tar stream rooted at /
func inputArchive(input []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	dir := strings.Trim(path.Dir(InputPath), "/")
	if err := tw.WriteHeader(&tar.Header{Typeflag: tar.TypeDir, Name: dir + "/", Mode: 0o755}); err != nil {
		return nil, err
	}
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     strings.TrimPrefix(InputPath, "/"),
		Mode:     0o444,
		Size:     int64(len(input)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, err
	}
	if _, err := tw.Write(input); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return &buf, nil
}

func (e *DockerEngine) output(ctx context.Context, id string) ([]byte, string, error) {
	logs, err := e.api.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return nil, "", err
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return nil, "", err
	}
	return stdout.Bytes(), stderr.String(), nil
}

// remove uses a fresh context so containers are cleaned up after a timeout
func (e *DockerEngine) remove(id string) {
	err := e.api.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		e.logger.Warn("Failed to remove kernel container",
			slog.String("container_id", id),
			slog.Any("error", err),
		)
	}
}
