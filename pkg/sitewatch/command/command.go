// Package command runs external programs such as the site mirror and the
// script beautifier behind a small interface, so callers can be tested
// without spawning processes.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// waitDelay bounds how long output pipes are drained after the process
// is killed.
const waitDelay = 10 * time.Second

// ErrNotInstalled is returned when the program cannot be found on PATH.
var ErrNotInstalled = errors.New("program not installed")

// Runner runs a program and returns its combined stdout and stderr.
// The output is returned even when err is non-nil.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs programs with os/exec.
type ExecRunner struct {
	// Dir is the working directory. Empty uses the current directory.
	Dir string

	// Timeout bounds each run. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// Run starts name with args and waits for it to exit. A non-zero exit is
// returned as an error wrapping *exec.ExitError.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = waitDelay

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out.Bytes(), fmt.Errorf("%s: %w", name, ctxErr)
		}
		return out.Bytes(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out.Bytes(), nil
}

// ExitCode returns the exit status carried by err, or -1 when err did not
// come from a process that exited.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
