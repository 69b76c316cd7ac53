package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error for retry logic.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on retry.
	// Examples: network timeouts, temporary data source unavailability.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: unknown provider id, malformed query, rendering failure.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Error represents a classified engine error with context.
type Error struct {
	// Class is the error classification for retry logic.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Component is the component id that caused the error, if applicable.
	Component string `json:"component,omitempty"`

	// Provider is the provider id involved in the error, if applicable.
	Provider string `json:"provider,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Component != "" && e.Provider != "":
		return fmt.Sprintf("[%s] %s (component=%s, provider=%s): %s",
			e.Class, e.Message, e.Component, e.Provider, e.unwrapMessage())
	case e.Component != "":
		return fmt.Sprintf("[%s] %s (component=%s): %s",
			e.Class, e.Message, e.Component, e.unwrapMessage())
	default:
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassTransient,
		Message: message,
		Err:     err,
	}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{
		Class:   ErrorClassPermanent,
		Message: message,
		Err:     err,
	}
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithComponent adds component context to an error.
func (e *Error) WithComponent(componentID string) *Error {
	e.Component = componentID
	return e
}

// WithProvider adds provider context to an error.
func (e *Error) WithProvider(providerID string) *Error {
	e.Provider = providerID
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassTransient
	}
	return false
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == ErrorClassPermanent
	}
	return false
}

// IsRetryable returns true if the error can be retried. Unclassified errors
// are treated as retryable so that plain provider errors fall under the
// component's retry policy; permanent classifications opt out.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class != ErrorClassPermanent
	}
	return true
}

// IsTimeout returns true if the error is a per-attempt timeout.
func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeTimeout
	}
	return false
}

// HasCode returns true if the error carries the given engine error code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// Common error codes.
const (
	ErrCodeConfiguration      = "CONFIGURATION_ERROR"
	ErrCodeProviderNotFound   = "PROVIDER_NOT_FOUND"
	ErrCodeProviderInit       = "PROVIDER_INIT_FAILED"
	ErrCodeCredentialNotFound = "CREDENTIAL_NOT_FOUND"
	ErrCodeCredentialInit     = "CREDENTIAL_INIT_FAILED"
	ErrCodeProviderExecution  = "PROVIDER_EXECUTION_FAILED"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeRendering          = "RENDERING_FAILED"
	ErrCodeTemplate           = "TEMPLATE_FAILED"
	ErrCodeCancelled          = "CANCELLED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
