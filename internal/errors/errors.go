package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a Bundler error code.
type ErrorCode string

const (
	ErrInvalidRequest         ErrorCode = "INVALID_REQUEST"          // 400
	ErrNotFound               ErrorCode = "NOT_FOUND"                // 404
	ErrFileNotFound           ErrorCode = "FILE_NOT_FOUND"           // 404
	ErrConflict               ErrorCode = "CONFLICT"                 // 409
	ErrUnmappedProcessingType ErrorCode = "UNMAPPED_PROCESSING_TYPE" // 422
	ErrCancelled              ErrorCode = "CANCELLED"                // 499
	ErrInternal               ErrorCode = "INTERNAL"                 // 500
	ErrUpstreamUnavailable    ErrorCode = "UPSTREAM_UNAVAILABLE"     // 503
)

// BundlerError represents a structured error with code, status, and details.
type BundlerError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *BundlerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *BundlerError {
	return &BundlerError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing entity of the given kind.
func NewNotFound(kind, identifier string) *BundlerError {
	return &BundlerError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %s", kind, identifier),
		Details: map[string]any{"kind": kind, "identifier": identifier},
	}
}

// NewFileNotFound creates a 404 error for a missing import file.
func NewFileNotFound(path string) *BundlerError {
	return &BundlerError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewConflict creates a 409 error for general conflicts.
func NewConflict(msg string) *BundlerError {
	return &BundlerError{
		Code:    ErrConflict,
		Status:  409,
		Message: msg,
	}
}

// NewIdempotencyConflict creates a 409 error when an idempotency key is replayed
// with a payload that differs from the one it was first used with.
func NewIdempotencyConflict(key, attemptID string) *BundlerError {
	return &BundlerError{
		Code:    ErrConflict,
		Status:  409,
		Message: fmt.Sprintf("idempotency key %q was already used with a different request", key),
		Details: map[string]any{"idempotency_key": key, "attempt_id": attemptID},
	}
}

// NewUnmappedProcessingType creates a 422 error for a processing type with no prompt template.
func NewUnmappedProcessingType(processingType string) *BundlerError {
	return &BundlerError{
		Code:    ErrUnmappedProcessingType,
		Status:  422,
		Message: fmt.Sprintf("no prompt template configured for processing type %q", processingType),
		Details: map[string]any{"processing_type": processingType},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by its context.
func NewCancelled(op string) *BundlerError {
	return &BundlerError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
		Details: map[string]any{"operation": op},
	}
}

// NewUpstreamUnavailable creates a 503 error for transient failures of an external service.
func NewUpstreamUnavailable(service string, err error) *BundlerError {
	msg := fmt.Sprintf("%s unavailable", service)
	if err != nil {
		msg = fmt.Sprintf("%s unavailable: %v", service, err)
	}
	return &BundlerError{
		Code:    ErrUpstreamUnavailable,
		Status:  503,
		Message: msg,
		Details: map[string]any{"service": service},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *BundlerError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &BundlerError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// As returns the first BundlerError in err's chain.
func As(err error) (*BundlerError, bool) {
	var bErr *BundlerError
	if stderrors.As(err, &bErr) {
		return bErr, true
	}
	return nil, false
}

// Is checks if an error (or anything it wraps) is a BundlerError with the given code.
func Is(err error, code ErrorCode) bool {
	if bErr, ok := As(err); ok {
		return bErr.Code == code
	}
	return false
}

// Message returns the BundlerError message of err with any wrapping context kept as
// a prefix, e.g. "content_ids[1]: content not found: x". Non-Bundler errors return
// err.Error().
func Message(err error) string {
	bErr, ok := As(err)
	if !ok {
		return err.Error()
	}
	prefix := strings.TrimSuffix(err.Error(), bErr.Error())
	return prefix + bErr.Message
}
