package queue

import (
	"errors"
	"fmt"
)

// Errors surfaced by the scheduler.
var (
	// ErrModelNotRegistered is returned for operations against a model id
	// with no registered queue.
	ErrModelNotRegistered = errors.New("model not registered")

	// ErrInvalidConfiguration is returned for structurally invalid model,
	// limiter, or request configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrDuplicateModel is returned when registering a model id that
	// already has a queue. It matches ErrInvalidConfiguration.
	ErrDuplicateModel = fmt.Errorf("model already registered: %w", ErrInvalidConfiguration)

	// ErrQueueShutdown is returned for submissions to a queue whose
	// shutdown has begun, and recorded on requests failed by a forced
	// shutdown.
	ErrQueueShutdown = errors.New("queue shut down")

	// ErrRequestNotFound is returned by status probes for request ids that
	// are unknown or no longer retained.
	ErrRequestNotFound = errors.New("request not found")
)
