package toolexec

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "github.com/worldland/gpumon/internal/errors"
)

// StubResult is a canned response for one command.
type StubResult struct {
	Output []byte
	Err    error
	// Delay blocks the call until it elapses or ctx is done.
	Delay time.Duration
}

// StubRunner returns canned output keyed by command name. Commands without an
// entry fail with TOOL_UNAVAILABLE, as if the tool were not installed.
type StubRunner struct {
	Results map[string]StubResult

	mu    sync.Mutex
	calls []string
}

// NewStubRunner creates a StubRunner with the given results.
func NewStubRunner(results map[string]StubResult) *StubRunner {
	return &StubRunner{Results: results}
}

func (s *StubRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, strings.TrimSpace(name+" "+strings.Join(args, " ")))
	s.mu.Unlock()

	res, ok := s.Results[name]
	if !ok {
		return nil, apperrors.New(apperrors.ErrCodeToolUnavailable, name+" not found")
	}
	if res.Delay > 0 {
		select {
		case <-time.After(res.Delay):
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.ContextCode(ctx.Err()), name+" did not finish", ctx.Err())
		}
	}
	return res.Output, res.Err
}

// Calls returns the command lines seen so far.
func (s *StubRunner) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

var _ Runner = (*StubRunner)(nil)
