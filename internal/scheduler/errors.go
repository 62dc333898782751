package scheduler

import "errors"

var (
	// ErrInvalidState is returned for lifecycle calls made in the wrong state
	ErrInvalidState = errors.New("invalid scheduler state")

	// ErrInvalidSlotCount is returned by Start for counts below 1
	ErrInvalidSlotCount = errors.New("slot count must be at least 1")

	// ErrSlotNotFound is returned for unknown slot ids
	ErrSlotNotFound = errors.New("slot not found")
)
