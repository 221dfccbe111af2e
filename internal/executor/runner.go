package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// outputClamp bounds how much captured output is persisted per stream.
const outputClamp = 5000

// RunResult captures the raw outcome of one runner invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Command  string
}

// Runner executes one test artifact and reports its raw outcome.
// A non-zero exit is a result, not an error; errors are reserved for
// timeouts, unsupported artifacts, and runner-internal faults.
type Runner interface {
	Run(ctx context.Context, artifactPath string) (*RunResult, error)
}

// ProcessRunner invokes an external interpreter per artifact type,
// working from the configured test root.
type ProcessRunner struct {
	Root    string
	Timeout time.Duration
	JavaJar string
}

func (r *ProcessRunner) Run(ctx context.Context, artifactPath string) (*RunResult, error) {
	args, err := r.command(artifactPath)
	if err != nil {
		return nil, err
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.Dir = r.Root

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, ErrExecutionTimeout
	}

	result := &RunResult{
		Stdout:  tail(stdout.String(), outputClamp),
		Stderr:  tail(stderr.String(), outputClamp),
		Command: strings.Join(args, " "),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, errors.Join(ErrRunnerFault, runErr)
	}

	return result, nil
}

func (r *ProcessRunner) command(artifactPath string) ([]string, error) {
	switch filepath.Ext(artifactPath) {
	case ".py":
		return []string{"python", artifactPath}, nil
	case ".java":
		jar := r.JavaJar
		if jar == "" {
			jar = "test-runner.jar"
		}
		return []string{"java", "-jar", jar, artifactPath}, nil
	default:
		return nil, ErrUnsupportedArtifact
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
