package process

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestExecRunnerCapturesOutputAndExitCode(t *testing.T) {
	sh := requireShell(t)
	r := NewExecRunner(5 * time.Second)

	res, err := r.Run(context.Background(), Spec{
		Name:   "echo",
		Binary: sh,
		Args:   []string{"-c", "echo out; echo boom 1>&2; exit 3"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExitCode != 3 || res.Success() {
		t.Errorf("exit code = %d", res.ExitCode)
	}
	if strings.TrimSpace(string(res.Stdout)) != "out" {
		t.Errorf("stdout = %q", res.Stdout)
	}
	if res.Diagnostics(0) != "boom" {
		t.Errorf("diagnostics = %q", res.Diagnostics(0))
	}
}

func TestExecRunnerTimeout(t *testing.T) {
	sh := requireShell(t)
	r := NewExecRunner(0)

	_, err := r.Run(context.Background(), Spec{
		Name:    "sleep",
		Binary:  sh,
		Args:    []string{"-c", "exec sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	r := NewExecRunner(time.Second)
	res, err := r.Run(context.Background(), Spec{Binary: "/nonexistent/ffmpeg-binary"})
	if err == nil {
		t.Fatal("expected start error")
	}
	if res.ExitCode != -1 {
		t.Errorf("exit code = %d, want -1", res.ExitCode)
	}
}

func TestDiagnosticsTruncatesFromTheFront(t *testing.T) {
	res := Result{Stderr: []byte("0123456789")}
	if got := res.Diagnostics(4); got != "…6789" {
		t.Errorf("Diagnostics(4) = %q", got)
	}
	res = Result{Stdout: []byte(" only stdout ")}
	if got := res.Diagnostics(0); got != "only stdout" {
		t.Errorf("fallback to stdout = %q", got)
	}
}
