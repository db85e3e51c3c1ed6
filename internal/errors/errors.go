// Package errors defines the structured error type shared by the probe chain,
// the scheduler and the API.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies a failure for programmatic handling.
type ErrorCode string

const (
	// ErrCodeToolUnavailable indicates the external tool is missing, not
	// executable, exited nonzero, or cannot run on this platform.
	ErrCodeToolUnavailable ErrorCode = "TOOL_UNAVAILABLE"
	// ErrCodeParseFailure indicates the tool ran but no record could be read from its output.
	ErrCodeParseFailure ErrorCode = "PARSE_FAILURE"
	// ErrCodeNoGPUDetected indicates every probe in the chain failed.
	ErrCodeNoGPUDetected ErrorCode = "NO_GPU_DETECTED"
	// ErrCodeTransientPoll marks a failure absorbed on a scheduled tick.
	ErrCodeTransientPoll ErrorCode = "TRANSIENT_POLL"
	// ErrCodeTimeout indicates an operation exceeded its time limit.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
	// ErrCodeCanceled indicates the caller abandoned the operation.
	ErrCodeCanceled ErrorCode = "CANCELED"
	// ErrCodeInvalidConfig indicates a configuration value failed validation.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInvalidRequest indicates malformed or invalid input.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	// ErrCodeMethodNotAllowed indicates the HTTP method is not allowed for the resource.
	ErrCodeMethodNotAllowed ErrorCode = "METHOD_NOT_ALLOWED"
	// ErrCodeRateLimitExceeded indicates the client exceeded the request limit.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeUnavailable indicates a service or resource is temporarily unavailable.
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	// ErrCodeInternal indicates an internal system error.
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// Sentinels for errors.Is. A StructuredError matches a sentinel when the codes are equal.
var (
	ErrToolUnavailable = New(ErrCodeToolUnavailable, "tool unavailable")
	ErrParseFailure    = New(ErrCodeParseFailure, "parse failure")
	ErrNoGPUDetected   = New(ErrCodeNoGPUDetected, "no GPU detected")
	ErrTransientPoll   = New(ErrCodeTransientPoll, "transient poll error")
	ErrTimeout         = New(ErrCodeTimeout, "timeout")
	ErrCanceled        = New(ErrCodeCanceled, "canceled")
)

// StructuredError carries an error code, a human-readable message, the
// underlying cause and optional context for debugging.
type StructuredError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is and errors.As support.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a StructuredError with the same code.
func (e *StructuredError) Is(target error) bool {
	t, ok := target.(*StructuredError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new StructuredError with the given code and message.
func New(code ErrorCode, message string) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
	}
}

// NewWithContext creates a new StructuredError with context information.
func NewWithContext(code ErrorCode, message string, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Context: context,
	}
}

// Wrap wraps an existing error with a code and message.
func Wrap(code ErrorCode, message string, cause error) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapWithContext wraps an error with a code, message and context.
func WrapWithContext(code ErrorCode, message string, cause error, context map[string]any) *StructuredError {
	return &StructuredError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: context,
	}
}

// CodeOf returns the code of the outermost StructuredError in err's chain,
// or ErrCodeInternal when there is none. A nil error has an empty code.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// RootCode returns the code of the innermost StructuredError in err's chain.
// A transient poll error wrapping NO_GPU_DETECTED reports NO_GPU_DETECTED.
func RootCode(err error) ErrorCode {
	code := CodeOf(err)
	for err != nil {
		if se, ok := err.(*StructuredError); ok {
			code = se.Code
		}
		err = stderrors.Unwrap(err)
	}
	return code
}

// ContextCode classifies a context error: TIMEOUT for an expired deadline,
// CANCELED for anything else.
func ContextCode(err error) ErrorCode {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	return ErrCodeCanceled
}
