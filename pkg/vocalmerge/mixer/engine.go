package mixer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
)

const DefaultTimeout = 10 * time.Minute

// ErrOutputMissing means ffmpeg exited cleanly but left no usable file.
var ErrOutputMissing = errors.New("mix output missing after successful exit")

// ExitError carries a failed transcode's exit status and the tail of its
// diagnostics.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited with code %d: %s", e.ExitCode, e.Stderr)
}

type Logger interface {
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// Result describes a finished mix.
type Result struct {
	OutputPath string
	SizeBytes  int64
	Elapsed    time.Duration
}

// Engine executes mix jobs, at most a fixed number at a time.
type Engine struct {
	Binary  string
	Runner  process.Runner
	Timeout time.Duration
	Logger  Logger

	slots *semaphore.Weighted
}

func NewEngine(binary string, runner process.Runner, maxConcurrent int64) *Engine {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Engine{
		Binary:  binary,
		Runner:  runner,
		Timeout: DefaultTimeout,
		slots:   semaphore.NewWeighted(maxConcurrent),
	}
}

// Run executes job once. Waiting for a slot honours ctx; the transcode itself
// is bounded by the engine timeout.
func (e *Engine) Run(ctx context.Context, job MixJob) (Result, error) {
	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return Result{}, fmt.Errorf("waiting for transcode slot: %w", err)
		}
		defer e.slots.Release(1)
	}

	args := job.Args()
	e.debugf("ffmpeg %s", strings.Join(args, " "))

	res, err := e.Runner.Run(ctx, process.Spec{
		Name:    "mix",
		Binary:  e.Binary,
		Args:    args,
		Timeout: e.Timeout,
	})
	if err != nil {
		return Result{}, err
	}
	if !res.Success() {
		return Result{}, &ExitError{ExitCode: res.ExitCode, Stderr: res.Diagnostics(2000)}
	}

	// missing and empty files both report size 0
	size := utils.FileSize(job.OutputPath())
	if size == 0 {
		return Result{}, ErrOutputMissing
	}

	if e.Logger != nil {
		e.Logger.Infof("mix finished in %s (%d bytes)", res.Elapsed.Round(time.Millisecond), size)
	}
	return Result{OutputPath: job.OutputPath(), SizeBytes: size, Elapsed: res.Elapsed}, nil
}

func (e *Engine) debugf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Debugf(format, args...)
	}
}
