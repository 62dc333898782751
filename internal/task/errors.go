package task

import "errors"

var (
	// ErrExecutorNotFound is returned for unregistered executor names
	ErrExecutorNotFound = errors.New("task executor not found")

	// ErrMaxAttemptsExceeded marks an outcome after the retry budget ran out
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")

	// ErrTaskPanicked wraps a panic recovered from an executor
	ErrTaskPanicked = errors.New("task panicked")
)
