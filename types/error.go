package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the crowd data layer.
type ErrorCode string

// Registry and wiring error codes. These are startup configuration errors
// and are never retried.
const (
	ErrDuplicateRegistration ErrorCode = "DUPLICATE_REGISTRATION"
	ErrUnknownCrowdType      ErrorCode = "UNKNOWN_CROWD_TYPE"
	ErrAlreadyWired          ErrorCode = "ALREADY_WIRED"
	ErrMalformedShape        ErrorCode = "MALFORMED_SHAPE"
	ErrRegistrySealed        ErrorCode = "REGISTRY_SEALED"
	ErrNotWired              ErrorCode = "NOT_WIRED"
)

// Template error codes
const (
	ErrCyclicDependency ErrorCode = "CYCLIC_DEPENDENCY"
)

// Workflow error codes
const (
	ErrTaskComplete      ErrorCode = "TASK_COMPLETE"
	ErrDuplicateResponse ErrorCode = "DUPLICATE_RESPONSE"
	ErrNoAvailableTask   ErrorCode = "NO_AVAILABLE_TASK"
)

// Generic error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrAlreadyExists  ErrorCode = "ALREADY_EXISTS"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// AsError extracts a *Error from the chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// Internal wraps a persistence or infrastructure failure.
func Internal(message string, cause error) *Error {
	return NewError(ErrInternalError, message).WithCause(cause)
}
