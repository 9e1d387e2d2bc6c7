package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrJobCancelled is returned when an operation is attempted against a
	// job that has already been cancelled.
	ErrJobCancelled = errors.New("job is cancelled")

	// ErrTaskNotRetryable is returned when retry is requested for a task
	// that is not in a failed or cancelled state.
	ErrTaskNotRetryable = errors.New("task is not in a retryable state")

	// ErrTaskNotCancellable is returned when cancel is requested for a task
	// that already reached a terminal state.
	ErrTaskNotCancellable = errors.New("task is not in a cancellable state")
)

// Error codes recorded on entities when a task or job fails. These surface
// to callers as error_code + error_message; diagnostic detail stays in
// event payloads.
const (
	ErrorCodeValidation     = "validation_error"
	ErrorCodeAlgorithm      = "algorithm_error"
	ErrorCodeRender         = "render_error"
	ErrorCodeStorage        = "storage_error"
	ErrorCodeProvider       = "provider_error"
	ErrorCodeRetryExhausted = "retry_exhausted"
	ErrorCodeCancelled      = "cancelled"
	ErrorCodeInternal       = "internal_error"
)
