// Package container implements the container driver capability set of
// §4.5 by shelling out to the `docker` CLI binary, mirroring the reference
// implementation's subprocess.Popen(["docker", "run", ...]) approach rather
// than linking a Docker SDK client (no example in the corpus wires one as a
// live, non-test component; see DESIGN.md).
package container

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Mount is a host-path -> container-path bind mount.
type Mount struct {
	HostPath      string
	ContainerPath string
}

// RunSpec describes one container invocation.
type RunSpec struct {
	Image      string
	Command    string // executed as `sh -c Command` inside the container
	Mounts     []Mount
	CPU        int
	Memory     string // docker --memory syntax, e.g. "512m"
	WorkingDir string
	LogFile    string // opened in append mode; stdout+stderr are teed here
}

// Handle is a running (or exited) container, keyed by its docker container
// name so Stop/Kill/Wait can address it after Run returns.
type Handle struct {
	name string
	cmd  *exec.Cmd

	mutex    sync.Mutex
	exitCode int
	waitErr  error
	waited   bool
	done     chan struct{}
}

// Driver is the capability set the step runner depends on. Implementations
// may wrap a local daemon or a remote runtime; the scheduler and step
// runner never see anything but this interface.
type Driver interface {
	Pull(ctx context.Context, image string) error
	Run(ctx context.Context, spec RunSpec) (*Handle, error)
	Stop(ctx context.Context, h *Handle, graceSeconds int64) error
	Kill(ctx context.Context, h *Handle) error
	Wait(h *Handle) (int, error)
}

// DockerDriver drives the docker CLI directly.
type DockerDriver struct {
	binary string // usually "docker"
}

// NewDockerDriver builds a driver invoking the named docker binary
// (defaults to "docker" on the PATH).
func NewDockerDriver(binary string) *DockerDriver {
	if binary == "" {
		binary = "docker"
	}
	return &DockerDriver{binary: binary}
}

// imageExists mirrors the source's check_image_exists via `docker image
// inspect`, so Pull is a no-op when the image is already present locally.
func (d *DockerDriver) imageExists(ctx context.Context, image string) bool {
	cmd := exec.CommandContext(ctx, d.binary, "image", "inspect", image)
	return cmd.Run() == nil
}

// Pull ensures image is available locally, matching
// ensure_image_available's pull-if-missing behaviour.
func (d *DockerDriver) Pull(ctx context.Context, image string) error {
	if d.imageExists(ctx, image) {
		return nil
	}
	cmd := exec.CommandContext(ctx, d.binary, "pull", image)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker pull %s: %w: %s", image, err, out)
	}
	return nil
}

// Run launches the container detached from ctx's cancellation (the caller
// controls its lifetime explicitly via Stop/Kill instead of context
// cancellation, since a cancelled context would SIGKILL the docker CLI
// process itself, not the container it started).
func (d *DockerDriver) Run(ctx context.Context, spec RunSpec) (*Handle, error) {
	name := "bioinfoflow-" + uuid.NewString()

	args := []string{"run", "--rm", "--name", name}
	if spec.CPU > 0 {
		args = append(args, "--cpus", strconv.Itoa(spec.CPU))
	}
	if spec.Memory != "" {
		args = append(args, "--memory", spec.Memory)
	}
	for _, m := range spec.Mounts {
		args = append(args, "-v", m.HostPath+":"+m.ContainerPath)
	}
	if spec.WorkingDir != "" {
		args = append(args, "-w", spec.WorkingDir)
	}
	args = append(args, spec.Image, "sh", "-c", spec.Command)

	cmd := exec.Command(d.binary, args...)

	logFile, err := os.OpenFile(spec.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", spec.LogFile, err)
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("start container %s: %w", spec.Image, err)
	}

	h := &Handle{name: name, cmd: cmd, done: make(chan struct{})}
	go func() {
		defer logFile.Close()
		err := cmd.Wait()
		h.mutex.Lock()
		h.waitErr = err
		h.exitCode = exitCodeFromError(cmd, err)
		h.waited = true
		h.mutex.Unlock()
		close(h.done)
	}()

	return h, nil
}

func exitCodeFromError(cmd *exec.Cmd, err error) int {
	if err == nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Stop sends `docker stop` with the given grace period, in seconds, after
// which the daemon itself escalates to SIGKILL.
func (d *DockerDriver) Stop(ctx context.Context, h *Handle, graceSeconds int64) error {
	cmd := exec.CommandContext(ctx, d.binary, "stop", "-t", strconv.FormatInt(graceSeconds, 10), h.name)
	return cmd.Run()
}

// Kill sends `docker kill` for immediate termination.
func (d *DockerDriver) Kill(ctx context.Context, h *Handle) error {
	cmd := exec.CommandContext(ctx, d.binary, "kill", h.name)
	return cmd.Run()
}

// Wait blocks until the container process has exited and returns its exit
// code.
func (d *DockerDriver) Wait(h *Handle) (int, error) {
	<-h.done
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.exitCode, nil
}

// Done exposes the handle's completion channel so a caller composing a
// wait-for-either (§5) can select on it directly instead of blocking in
// Wait.
func (h *Handle) Done() <-chan struct{} { return h.done }
