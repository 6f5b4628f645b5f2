package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/jdziat/confinity/pkg/security"
)

// Output is what a child process left behind.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int

	// Truncated is set when stdout exceeded security.MaxResultOutputSize.
	Truncated bool
}

// Runner starts one child process for target with the encoded payload.
// A non-zero exit is reported in Output, not as an error; errors are
// reserved for failures to start or wait for the process.
type Runner interface {
	Name() string
	Run(ctx context.Context, target, payload string, env []string) (*Output, error)
}

// commandFunc matches exec.CommandContext.
type commandFunc func(ctx context.Context, name string, args ...string) *exec.Cmd

// ExecRunner spawns the child binary on the local host.
type ExecRunner struct {
	// Path of the child binary.
	Path string

	// Env is the base environment. Nil inherits the parent's environment.
	Env []string

	// Dir is the working directory. Empty uses the parent's.
	Dir string

	execCommand commandFunc
}

// Name implements Runner.
func (r *ExecRunner) Name() string { return "exec" }

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, target, payload string, env []string) (*Output, error) {
	if r.Path == "" {
		return nil, errors.New("exec runner: child path is empty")
	}
	base := r.Env
	if base == nil {
		base = os.Environ()
	}
	cmd := command(r.execCommand)(ctx, r.Path, target, payload)
	cmd.Dir = r.Dir
	cmd.Env = append(append([]string{}, base...), env...)
	return run(ctx, cmd)
}

// DockerRunner runs the child binary inside a throwaway container with
// networking disabled.
type DockerRunner struct {
	// Image whose entrypoint is the child binary.
	Image string

	// Binary is the container CLI. Default: "docker".
	Binary string

	// Network passed to --network. Default: "none".
	Network string

	// Args are extra flags inserted before the image, e.g. --memory.
	Args []string

	execCommand commandFunc
}

// Name implements Runner.
func (r *DockerRunner) Name() string { return "docker" }

// RunArgs returns the container CLI arguments for one invocation.
func (r *DockerRunner) RunArgs(target, payload string, env []string) []string {
	network := r.Network
	if network == "" {
		network = "none"
	}
	args := []string{"run", "--rm", "--network", network}
	for _, kv := range env {
		args = append(args, "-e", kv)
	}
	args = append(args, r.Args...)
	return append(args, r.Image, target, payload)
}

// Run implements Runner.
func (r *DockerRunner) Run(ctx context.Context, target, payload string, env []string) (*Output, error) {
	if r.Image == "" {
		return nil, errors.New("docker runner: image is empty")
	}
	binary := r.Binary
	if binary == "" {
		binary = "docker"
	}
	cmd := command(r.execCommand)(ctx, binary, r.RunArgs(target, payload, env)...)
	return run(ctx, cmd)
}

func command(f commandFunc) commandFunc {
	if f == nil {
		return exec.CommandContext
	}
	return f
}

func run(ctx context.Context, cmd *exec.Cmd) (*Output, error) {
	stdout := &limitedBuffer{limit: security.MaxResultOutputSize}
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := &Output{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.truncated,
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("child %s: %w", cmd.Path, ctxErr)
		}
		out.ExitCode = exitErr.ExitCode()
	}
	return out, nil
}

// limitedBuffer keeps the first limit bytes and discards the rest.
type limitedBuffer struct {
	bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.Len()
	if room <= 0 {
		b.truncated = len(p) > 0 || b.truncated
		return len(p), nil
	}
	if len(p) > room {
		b.truncated = true
		b.Buffer.Write(p[:room])
		return len(p), nil
	}
	return b.Buffer.Write(p)
}
