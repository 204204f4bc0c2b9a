package scheduler

import "errors"

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrAlreadyRunning is returned when Start is called on a running sweeper
	ErrAlreadyRunning = errors.New("overdue sweeper is already running")
)
