// Package process supervises external media tools (ffmpeg, ffprobe). A caller
// submits a Spec and receives the exit status plus captured output; nothing is
// retried here.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies when neither the Spec nor the runner sets one.
const DefaultTimeout = 10 * time.Minute

var ErrTimeout = errors.New("process timed out")

// Spec describes a single invocation.
type Spec struct {
	Name    string // short label used in logs and errors, e.g. "mix"
	Binary  string
	Args    []string
	Timeout time.Duration
}

// Result is what the process left behind. ExitCode is -1 when the process
// never produced one (start failure, timeout).
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Elapsed  time.Duration
}

// Success reports a zero exit status.
func (r Result) Success() bool { return r.ExitCode == 0 }

// Diagnostics returns the trimmed stderr, falling back to stdout, limited to
// the last max bytes.
func (r Result) Diagnostics(max int) string {
	text := strings.TrimSpace(string(r.Stderr))
	if text == "" {
		text = strings.TrimSpace(string(r.Stdout))
	}
	if max > 0 && len(text) > max {
		text = "…" + text[len(text)-max:]
	}
	return text
}

// Runner executes a Spec. A process that runs to completion returns a nil
// error whatever its exit code; errors mean it could not be started or was
// killed.
type Runner interface {
	Run(ctx context.Context, spec Spec) (Result, error)
}

// ExecRunner runs specs with os/exec.
type ExecRunner struct {
	Timeout time.Duration
}

func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

func (r *ExecRunner) Run(ctx context.Context, spec Spec) (Result, error) {
	if strings.TrimSpace(spec.Binary) == "" {
		return Result{ExitCode: -1}, fmt.Errorf("%s: empty binary", spec.label())
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.Timeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// ffmpeg can leave helper children holding the pipes after a kill
	cmd.WaitDelay = 5 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{
		ExitCode: -1,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Elapsed:  time.Since(start),
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("%s: %w after %s", spec.label(), ErrTimeout, timeout)
	}
	if ctx.Err() != nil {
		return res, fmt.Errorf("%s: %w", spec.label(), ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return res, fmt.Errorf("%s: starting %s: %w", spec.label(), spec.Binary, err)
	}
	return res, nil
}

func (s Spec) label() string {
	if s.Name != "" {
		return s.Name
	}
	return "process"
}
