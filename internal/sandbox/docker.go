package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// commandFunc builds the CLI invocation; tests substitute their own.
type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// DockerCLI drives docker through its CLI. Using the CLI instead of the SDK
// keeps the runtime a black box: one blocking call in, stdout/stderr/exit
// code out.
type DockerCLI struct {
	bin     string
	command commandFunc
	logger  *zerolog.Logger
}

func NewDockerCLI(logger *zerolog.Logger) *DockerCLI {
	return &DockerCLI{
		bin:     "docker",
		command: exec.CommandContext,
		logger:  logger,
	}
}

func (d *DockerCLI) Ping(ctx context.Context) error {
	cmd := d.command(ctx, d.bin, "info")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("docker daemon unreachable: %v: %s", err, firstLine(out))
	}
	return nil
}

func (d *DockerCLI) ImageExists(ctx context.Context, image string) error {
	cmd := d.command(ctx, d.bin, "image", "inspect", image)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("image %q not present: %v: %s", image, err, firstLine(out))
	}
	return nil
}

func (d *DockerCLI) Run(ctx context.Context, spec RunSpec) (*RunResult, error) {
	args := []string{
		"run",
		"--rm",                   // tear the container down on exit
		"-i",                     // attach stdin for the payload
		"--name", spec.Name,      // handle for precise kill on timeout
		"--network", "none",      // no network access
		"--memory", spec.Memory,
		"--cpus", spec.CPUs,
		"--user", spec.User,
		"--tmpfs", "/tmp:size=" + spec.TmpfsSize, // scratch space only
	}
	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	cmd := d.command(ctx, d.bin, args...)
	cmd.Stdin = bytes.NewReader(spec.Stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	d.logger.Debug().Str("container", spec.Name).Msg("spawning sandbox container")

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("running %s: %w", d.bin, err)
		}
	}

	return &RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}, nil
}

func (d *DockerCLI) Kill(ctx context.Context, name string) error {
	cmd := d.command(ctx, d.bin, "kill", name)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("killing container %q: %v: %s", name, err, firstLine(out))
	}
	return nil
}

func firstLine(out []byte) string {
	s := strings.TrimSpace(string(out))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
