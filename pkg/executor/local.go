package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// waitDelay caps how long Run waits for output pipes after the process was killed.
const waitDelay = 2 * time.Second

// Local runs commands on the current host through a shell interpreter.
type Local struct{}

var _ Backend = (*Local)(nil)

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Name() string { return "local" }

// Close is a no-op; Local holds no resources between runs.
func (l *Local) Close() error { return nil }

func (l *Local) Run(ctx context.Context, command string, timeout time.Duration) Outcome {
	timeout = effectiveTimeout(timeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(ctx, command)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return failed(timeoutError(timeout))
	case ctx.Err() != nil:
		return failed(fmt.Errorf("command canceled: %w", ctx.Err()))
	}

	if err == nil {
		return completed(0, stdout.String(), stderr.String())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return completed(exitErr.ExitCode(), stdout.String(), stderr.String())
	}
	return failed(fmt.Errorf("start command: %w", err))
}
