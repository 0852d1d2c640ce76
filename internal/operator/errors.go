package operator

import "errors"

var (
	// ErrSensorTimeout is returned by a sensor whose condition was never met
	// within its timeout.
	ErrSensorTimeout = errors.New("sensor timed out")

	// ErrTaskSkipped is returned when an operator decides the task should be
	// treated as skipped rather than failed.
	ErrTaskSkipped = errors.New("task skipped")
)
