// Package core holds the shared error taxonomy for the viva engine.
package core

import (
	"errors"
	"fmt"
)

// Error is a categorized engine error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`

	// Cause is the underlying error, if any. It is not serialized.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrPermission covers microphone (or other device) access denials.
	// Fatal to the current attempt; the user must retry after granting access.
	ErrPermission ErrorType = "permission_error"

	// ErrConnectivity covers streaming channel or bridge session failures.
	// Terminal for the attempt; retry is a fresh explicit action.
	ErrConnectivity ErrorType = "connectivity_error"

	// ErrSubmission covers failed answer round-trips. Recovered locally by
	// appending an error turn; the interview continues.
	ErrSubmission ErrorType = "submission_error"

	// ErrInvalidRequest covers client-side validation failures.
	ErrInvalidRequest ErrorType = "invalid_request_error"

	// ErrAPI covers unexpected backend responses.
	ErrAPI ErrorType = "api_error"
)

// NewPermissionError creates a permission error wrapping its cause.
func NewPermissionError(message string, cause error) *Error {
	return &Error{Type: ErrPermission, Message: message, Cause: cause}
}

// NewConnectivityError creates a connectivity error wrapping its cause.
func NewConnectivityError(message string, cause error) *Error {
	return &Error{Type: ErrConnectivity, Message: message, Cause: cause}
}

// NewSubmissionError creates a submission error wrapping its cause.
func NewSubmissionError(message string, cause error) *Error {
	return &Error{Type: ErrSubmission, Message: message, Cause: cause}
}

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewAPIError creates an API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// TypeOf returns the ErrorType of err, or "" if err is not a core Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsPermission reports whether err is a permission error.
func IsPermission(err error) bool {
	return TypeOf(err) == ErrPermission
}

// IsConnectivity reports whether err is a connectivity error.
func IsConnectivity(err error) bool {
	return TypeOf(err) == ErrConnectivity
}

// IsSubmission reports whether err is a submission error.
func IsSubmission(err error) bool {
	return TypeOf(err) == ErrSubmission
}

// IsInvalidRequest reports whether err is an invalid request error.
func IsInvalidRequest(err error) bool {
	return TypeOf(err) == ErrInvalidRequest
}
