package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of a request failure
type ErrorType int

const (
	// ErrTypeValidation indicates malformed or unsafe input
	ErrTypeValidation ErrorType = iota
	// ErrTypeAuth indicates a missing or invalid API key
	ErrTypeAuth
	// ErrTypeNotFound indicates an unknown resource such as a job id
	ErrTypeNotFound
	// ErrTypeTooLarge indicates a request body over the upload limit
	ErrTypeTooLarge
	// ErrTypeRateLimited indicates the caller exhausted its request budget
	ErrTypeRateLimited
	// ErrTypeSubsystem indicates a failure reported by the print server or discovery
	ErrTypeSubsystem
	// ErrTypeUnexpected indicates anything else
	ErrTypeUnexpected
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeNotFound:
		return "Not Found"
	case ErrTypeTooLarge:
		return "Request Too Large"
	case ErrTypeRateLimited:
		return "Rate Limited"
	case ErrTypeSubsystem:
		return "Subsystem Error"
	case ErrTypeUnexpected:
		return "Unexpected Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// unexpectedMessage is all a client learns about an unexpected failure
const unexpectedMessage = "Internal server error"

// Error is a request failure carrying its HTTP mapping.
type Error struct {
	Type    ErrorType // Category of error
	Message string    // Message returned to the client
	Err     error     // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error type.
func (e *Error) StatusCode() int {
	switch e.Type {
	case ErrTypeValidation:
		return http.StatusBadRequest
	case ErrTypeAuth:
		return http.StatusUnauthorized
	case ErrTypeNotFound:
		return http.StatusNotFound
	case ErrTypeTooLarge:
		return http.StatusRequestEntityTooLarge
	case ErrTypeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text placed in the JSON error body.
// Subsystem messages are passed through; unexpected ones are not.
func (e *Error) PublicMessage() string {
	switch e.Type {
	case ErrTypeUnexpected:
		return unexpectedMessage
	case ErrTypeSubsystem:
		if e.Message == "" && e.Err != nil {
			return e.Err.Error()
		}
	}
	return e.Message
}

// NewValidationError creates a validation error
func NewValidationError(message string) *Error {
	return &Error{Type: ErrTypeValidation, Message: message}
}

// NewAuthError creates an authentication error
func NewAuthError(message string) *Error {
	return &Error{Type: ErrTypeAuth, Message: message}
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrTypeNotFound, Message: message}
}

// NewTooLargeError creates an error for an oversized body
func NewTooLargeError(limit int64) *Error {
	return &Error{Type: ErrTypeTooLarge, Message: fmt.Sprintf("Request body exceeds %d bytes", limit)}
}

// NewRateLimitError creates a rate limit error
func NewRateLimitError() *Error {
	return &Error{Type: ErrTypeRateLimited, Message: "Rate limit exceeded"}
}

// NewSubsystemError wraps a print server or discovery failure. The
// underlying message is what the client sees.
func NewSubsystemError(err error) *Error {
	return &Error{Type: ErrTypeSubsystem, Message: err.Error(), Err: err}
}

// NewUnexpectedError wraps an unclassified failure
func NewUnexpectedError(err error) *Error {
	return &Error{Type: ErrTypeUnexpected, Message: unexpectedMessage, Err: err}
}

// AsError returns err as an *Error, wrapping unclassified errors as unexpected.
func AsError(err error) *Error {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return NewUnexpectedError(err)
}

func isType(err error, t ErrorType) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Type == t
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrTypeValidation) }

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool { return isType(err, ErrTypeAuth) }

// IsNotFoundError checks if an error is a not-found error
func IsNotFoundError(err error) bool { return isType(err, ErrTypeNotFound) }

// IsSubsystemError checks if an error came from the print server or discovery
func IsSubsystemError(err error) bool { return isType(err, ErrTypeSubsystem) }

// IsUnexpectedError checks if an error is unclassified
func IsUnexpectedError(err error) bool { return isType(err, ErrTypeUnexpected) }
