// Package toolexec runs vendor command-line tools with a bounded timeout and
// classifies their failures.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	apperrors "github.com/worldland/gpumon/internal/errors"
)

// Runner executes an external command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct {
	// Timeout bounds every invocation. Zero means no bound beyond ctx.
	Timeout time.Duration
	// LookPath resolves the executable; exec.LookPath when nil.
	LookPath func(file string) (string, error)
}

// NewExecRunner creates a runner with the given per-invocation timeout.
func NewExecRunner(timeout time.Duration) *ExecRunner {
	return &ExecRunner{Timeout: timeout}
}

// Run resolves name on PATH and runs it. A missing executable or a nonzero
// exit returns TOOL_UNAVAILABLE; exceeding the timeout returns TIMEOUT and a
// cancelled ctx returns CANCELED.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	lookPath := r.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	path, err := lookPath(name)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeToolUnavailable, name+" not found", err)
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Release Wait even if the tool leaves a child holding the pipes open.
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		return nil, classify(ctx, name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func classify(ctx context.Context, name string, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.WrapWithContext(apperrors.ContextCode(ctxErr), name+" did not finish", ctxErr,
			map[string]any{"command": name})
	}

	details := map[string]any{"command": name}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		details["exit_code"] = exitErr.ExitCode()
	}
	if s := strings.TrimSpace(stderr); s != "" {
		details["stderr"] = truncate(s, 256)
	}
	return apperrors.WrapWithContext(apperrors.ErrCodeToolUnavailable, name+" failed", err, details)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ Runner = (*ExecRunner)(nil)
