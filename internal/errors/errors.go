package errors

import "errors"

var (
	ErrConfigNotFound = errors.New("configuration file not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrTaskNotReady   = errors.New("task output not available")

	// ErrInvalidInput means no video identifier could be extracted from the input.
	ErrInvalidInput = errors.New("invalid media reference")

	// ErrExtractionFailed is returned by a capability that gave up before
	// writing anything to the response.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrSpawnFailed means the external tool could not be started.
	ErrSpawnFailed = errors.New("failed to spawn external process")

	// ErrPartialStream means a capability failed after bytes were committed
	// to the response. The request cannot be retried.
	ErrPartialStream = errors.New("stream failed after response was committed")

	ErrAllCapabilitiesExhausted = errors.New("all methods failed to stream")
)
