package renderer

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Command describes one child process invocation.
type Command struct {
	Binary         string
	Args           []string
	Dir            string
	Env            []string
	MaxOutputBytes int
}

// ExecResult is what the child process produced. ExitCode is -1 when the
// process did not exit on its own.
type ExecResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Truncated bool
}

// Executor runs a Command. When ctx ends before the process exits, the process
// and its descendants must be terminated and ctx.Err() returned.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (ExecResult, error)
}

// ProcessExecutor runs commands with os/exec in their own process group.
type ProcessExecutor struct {
	// WaitDelay bounds how long to wait for output pipes after a kill.
	WaitDelay time.Duration
}

func (e ProcessExecutor) Execute(ctx context.Context, c Command) (ExecResult, error) {
	res := ExecResult{ExitCode: -1}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	setupProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 2 * time.Second
	}

	stdout := newTailBuffer(c.MaxOutputBytes)
	stderr := newTailBuffer(c.MaxOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.Truncated = stdout.truncated || stderr.truncated

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		return res, err
	}
	res.ExitCode = 0
	return res, nil
}

// tailBuffer keeps the last max bytes written to it. Tracebacks end up at the
// bottom of stderr, so the head is what gets dropped.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 1 << 20
	}
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
