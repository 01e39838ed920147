// Package process runs the external programs the loop drives (the prover and
// the trainer) behind an interface so the callers can be tested without
// spawning real processes.
package process

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// #region runner

// Runner executes an external program to completion.
//
// Run returns the combined stdout/stderr of the process. A non-zero exit is
// returned as an error together with whatever output was produced, so callers
// can log it and decide for themselves whether the failure matters.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// #endregion runner

// #region exec-runner

// ExecRunner runs programs with os/exec. Cancelling ctx kills the process;
// WaitDelay bounds how long Run waits for inherited pipes after the kill.
type ExecRunner struct {
	WaitDelay time.Duration
}

// NewExecRunner returns an ExecRunner with a one second wait delay.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{WaitDelay: time.Second}
}

// Run starts name with args and waits for it to exit.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = r.WaitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out.Bytes(), fmt.Errorf("run %s: %w", name, ctxErr)
		}
		return out.Bytes(), fmt.Errorf("run %s: %w", name, err)
	}
	return out.Bytes(), nil
}

// #endregion exec-runner

// #region mock-runner

// Call is one invocation recorded by MockRunner.
type Call struct {
	Name string
	Args []string
}

// MockRunner records invocations and delegates to RunFunc. It is safe for
// concurrent use, which the batch prover's tests rely on.
type MockRunner struct {
	RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

	mu    sync.Mutex
	calls []Call
}

// Run records the call and invokes RunFunc when set.
func (m *MockRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Name: name, Args: append([]string(nil), args...)})
	m.mu.Unlock()

	if m.RunFunc != nil {
		return m.RunFunc(ctx, name, args...)
	}
	return nil, nil
}

// Calls returns a copy of the recorded invocations.
func (m *MockRunner) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// #endregion mock-runner
