package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError represents a service-level error with context
type ServiceError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode,omitempty"`
	Details    string `json:"details,omitempty"`
	Cause      error  `json:"-"` // Original error, not exposed in JSON
}

func (e ServiceError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e ServiceError) Unwrap() error {
	return e.Cause
}

// Error code constants
const (
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeTransient     = "TRANSIENT_CHANNEL_FAILURE"
	ErrCodeCircuitOpen   = "CIRCUIT_OPEN"
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal      = "INTERNAL_ERROR"
)

// NewServiceError creates a new service error
func NewServiceError(code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewConfigurationError marks a channel or oracle as unconfigured; callers
// skip the channel and proceed with the rest.
func NewConfigurationError(component string) error {
	return ServiceError{
		Code:       ErrCodeConfiguration,
		Message:    fmt.Sprintf("%s is not configured", component),
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewTransientError wraps a network or timeout failure that is worth retrying.
func NewTransientError(message string, cause error) error {
	return ServiceError{
		Code:       ErrCodeTransient,
		Message:    message,
		Cause:      cause,
		StatusCode: http.StatusServiceUnavailable,
	}
}

// NewValidationError rejects an out-of-range or malformed input; no state is
// mutated for a rejected update.
func NewValidationError(message string) error {
	return ServiceError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NewNotFoundError signals an unknown incident, entity or token.
func NewNotFoundError(resource string) error {
	return ServiceError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

func NewRateLimitError(message string) error {
	return ServiceError{
		Code:       ErrCodeRateLimit,
		Message:    message,
		StatusCode: http.StatusTooManyRequests,
	}
}

func NewInternalError(message string) error {
	return ServiceError{
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// ErrCircuitOpen is the fast-fail returned while a breaker is open.
var ErrCircuitOpen = ServiceError{
	Code:       ErrCodeCircuitOpen,
	Message:    "circuit breaker is open",
	StatusCode: http.StatusServiceUnavailable,
}

// IsCircuitOpen reports whether err is (or wraps) the breaker fast-fail.
func IsCircuitOpen(err error) bool {
	var se ServiceError
	return errors.As(err, &se) && se.Code == ErrCodeCircuitOpen
}

// IsConfigurationError reports whether err marks an unconfigured dependency.
func IsConfigurationError(err error) bool {
	var se ServiceError
	return errors.As(err, &se) && se.Code == ErrCodeConfiguration
}

// GetServiceError extracts a ServiceError from an error
func GetServiceError(err error) (ServiceError, bool) {
	var se ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return ServiceError{}, false
}

// WrapError attaches a code and message to an underlying error.
func WrapError(err error, code, message string) error {
	return ServiceError{
		Code:       code,
		Message:    message,
		Cause:      err,
		StatusCode: http.StatusInternalServerError,
	}
}
