package deb

import (
	"context"
	"errors"
	"os/exec"
)

// Runner executes host commands. The default implementation shells out;
// tests substitute a fake so dpkg and systemctl are never really invoked.
type Runner interface {
	// Output runs the command and returns its standard output.
	// A non-zero exit is an error.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Run executes the command and reports whether it exited successfully.
	// (false, nil) means the command ran and exited non-zero, which callers
	// treat as a recoverable outcome rather than an execution error.
	Run(ctx context.Context, name string, args ...string) (bool, error)
}

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// Output implements Runner.
func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (bool, error) {
	err := exec.CommandContext(ctx, name, args...).Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}
