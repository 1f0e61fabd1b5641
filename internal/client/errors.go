package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error
	ErrTypeNetwork ErrorType = iota
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates nothing is listening at the gateway address
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates the gateway hostname could not be resolved
	ErrTypeDNS
	// ErrTypeAuth indicates a missing or rejected API key
	ErrTypeAuth
	// ErrTypeNotFound indicates an unknown job or route
	ErrTypeNotFound
	// ErrTypeRateLimited indicates the caller exhausted its request budget
	ErrTypeRateLimited
	// ErrTypeHTTP indicates any other non-2xx response
	ErrTypeHTTP
	// ErrTypeParse indicates a response that could not be decoded
	ErrTypeParse
	// ErrTypeValidation indicates the request was rejected before or by the gateway as invalid
	ErrTypeValidation
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeNotFound:
		return "Not Found"
	case ErrTypeRateLimited:
		return "Rate Limited"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// ClientError is returned by every Client call.
type ClientError struct {
	Type       ErrorType
	Message    string // gateway error message when one was returned
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError maps a transport error to a ClientError.
func ClassifyNetworkError(message string, err error) *ClientError {
	if err == nil {
		return nil
	}

	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: message, Err: err, Retryable: true}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &ClientError{Type: ErrTypeDNS, Message: message, Err: err}
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return &ClientError{Type: ErrTypeConnectionRefused, Message: message, Err: err, Retryable: true}
	}

	return &ClientError{Type: ErrTypeNetwork, Message: message, Err: err, Retryable: true}
}

// newStatusError builds the error for a non-2xx response carrying message.
func newStatusError(status int, message string) *ClientError {
	if message == "" {
		message = http.StatusText(status)
	}
	e := &ClientError{Message: message, StatusCode: status}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Type = ErrTypeAuth
	case status == http.StatusNotFound:
		e.Type = ErrTypeNotFound
	case status == http.StatusTooManyRequests:
		e.Type = ErrTypeRateLimited
	case status == http.StatusBadRequest || status == http.StatusRequestEntityTooLarge:
		e.Type = ErrTypeValidation
	default:
		e.Type = ErrTypeHTTP
		e.Retryable = status == http.StatusBadGateway ||
			status == http.StatusServiceUnavailable ||
			status == http.StatusGatewayTimeout
	}
	return e
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *ClientError {
	return &ClientError{Type: ErrTypeParse, Message: message, Err: err}
}

// NewValidationError creates a validation error for a request that was never sent
func NewValidationError(message string) *ClientError {
	return &ClientError{Type: ErrTypeValidation, Message: message}
}

func isType(err error, types ...ErrorType) bool {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return false
	}
	for _, t := range types {
		if ce.Type == t {
			return true
		}
	}
	return false
}

// IsNetworkError checks if an error is a network error (including timeout, connection refused, DNS)
func IsNetworkError(err error) bool {
	return isType(err, ErrTypeNetwork, ErrTypeTimeout, ErrTypeConnectionRefused, ErrTypeDNS)
}

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool { return isType(err, ErrTypeAuth) }

// IsNotFoundError checks if an error is a not-found error
func IsNotFoundError(err error) bool { return isType(err, ErrTypeNotFound) }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrTypeValidation) }

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return "An unexpected error occurred. Please try again."
	}

	switch ce.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The gateway did not respond in time.",
			"Troubleshooting:",
			"  • Check that printgate is running",
			"  • Large PDFs take longer to upload; try --timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The gateway refused the connection.",
			"Troubleshooting:",
			"  • Start the gateway with: printgate serve",
			"  • Verify the port in --gateway or client.gateway_url",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the gateway hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead of hostname",
			"  • Run 'printgate scan' to find gateways advertised on the network",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"The gateway rejected the API key.",
			"Troubleshooting:",
			"  • Pass --api-key or set client.api_key in the config file",
			"  • Check that the key is listed in auth.api_keys on the gateway",
		}, "\n")

	case ErrTypeRateLimited:
		return "Too many requests from this address. Wait a minute and try again."

	case ErrTypeNotFound:
		return "The gateway does not know this job or printer. Check the id with 'printgate-client printers'."

	case ErrTypeNetwork:
		return strings.Join([]string{
			"Network communication failed.",
			"Troubleshooting:",
			"  • Check your network connection",
			"  • Ensure you're on the same network as the gateway",
		}, "\n")

	case ErrTypeHTTP:
		if ce.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The gateway returned an error (HTTP %d).", ce.StatusCode),
				"This usually means CUPS rejected the request.",
				"Troubleshooting:",
				"  • Check that CUPS is running on the gateway host",
				"  • Look at the gateway log for the full error",
			}, "\n")
		}
		return fmt.Sprintf("The gateway returned HTTP error %d. Check the request parameters.", ce.StatusCode)

	case ErrTypeParse:
		return "Failed to parse the gateway's response. Check that --gateway points at printgate."

	case ErrTypeValidation:
		return "The request was rejected as invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var ce *ClientError
	if !errors.As(err, &ce) {
		return err.Error()
	}

	switch ce.Type {
	case ErrTypeTimeout:
		return "Gateway not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "Gateway refused connection - is printgate running?"
	case ErrTypeDNS:
		return "Cannot resolve gateway hostname"
	case ErrTypeAuth:
		return "Authentication failed - check API key"
	case ErrTypeRateLimited:
		return "Rate limit exceeded"
	case ErrTypeNetwork:
		return "Network error - check connection"
	case ErrTypeParse:
		return "Failed to parse gateway response"
	default:
		return ce.Message
	}
}
