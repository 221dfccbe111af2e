package executor

import "errors"

var (
	// ErrResourceBusy means the hardware lock could not be acquired
	// within the bounded wait window. The case is reported skipped,
	// not failed.
	ErrResourceBusy = errors.New("hardware resource busy")

	// ErrExecutionTimeout means the runner process exceeded the global
	// test timeout. The case fails with its duration clamped to the
	// timeout.
	ErrExecutionTimeout = errors.New("test execution timeout")

	// ErrUnsupportedArtifact means no runner mapping exists for the
	// artifact type.
	ErrUnsupportedArtifact = errors.New("unsupported artifact type")

	// ErrRunnerFault covers runner-internal failures that are not a
	// plain non-zero exit.
	ErrRunnerFault = errors.New("runner fault")
)
