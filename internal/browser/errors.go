package browser

import "errors"

var (
	// ErrSessionNotFound is returned when a slot has no tracked session
	ErrSessionNotFound = errors.New("browser session not found")

	// ErrNoProcess is returned when a session has no OS process to signal
	ErrNoProcess = errors.New("browser session has no process")
)
