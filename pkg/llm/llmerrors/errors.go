// Package llmerrors provides structured error classification for AI provider
// calls. Classification decides failover: recoverable failures move the
// router to the next provider, everything else surfaces to the caller.
package llmerrors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType categorizes a provider failure.
type ErrorType int8

const (
	// ErrorTypeUnavailable means a connection to the provider could not be
	// established (e.g. local model server not running).
	ErrorTypeUnavailable ErrorType = iota
	// ErrorTypeTimeout means no response arrived within the per-provider
	// deadline.
	ErrorTypeTimeout
	// ErrorTypeInvalidResponse means a response arrived but was empty or
	// malformed.
	ErrorTypeInvalidResponse
	// ErrorTypeAllFailed means every provider in the router's preference list
	// failed for one call. Never retried, never swallowed.
	ErrorTypeAllFailed
	// ErrorTypeUnknown is the default for unclassified failures.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeUnavailable:
		return "unavailable"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeInvalidResponse:
		return "invalid_response"
	case ErrorTypeAllFailed:
		return "all_providers_failed"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error is a classified provider error.
type Error struct {
	Err      error     // wrapped underlying error
	Message  string    // human-readable description
	Provider string    // provider that produced the failure, if known
	Type     ErrorType // classification
}

// Error implements the error interface.
func (e *Error) Error() string {
	prefix := "provider error"
	if e.Provider != "" {
		prefix = fmt.Sprintf("provider %s error", e.Provider)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s (%s): %s", prefix, e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", prefix, e.Type, e.Err)
	}
	return fmt.Sprintf("%s (%s)", prefix, e.Type)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the router should fail over to the next
// provider after this error.
func (e *Error) Recoverable() bool {
	switch e.Type {
	case ErrorTypeUnavailable, ErrorTypeTimeout, ErrorTypeInvalidResponse:
		return true
	default:
		return false
	}
}

// New creates a classified error.
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap creates a classified error wrapping a cause.
func Wrap(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// Is checks whether err carries a specific classification.
func Is(err error, errorType ErrorType) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type == errorType
	}
	return false
}

// TypeOf returns the classification of err, ErrorTypeUnknown if unclassified.
func TypeOf(err error) ErrorType {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Type
	}
	return ErrorTypeUnknown
}

// Recoverable reports whether err permits failover.
func Recoverable(err error) bool {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Recoverable()
	}
	return false
}

// AllFailedError aggregates the per-provider causes of one failed routed call.
type AllFailedError struct {
	Causes map[string]error // provider name → failure
}

// NewAllFailedError builds the aggregate error surfaced when the whole
// preference list is exhausted.
func NewAllFailedError(causes map[string]error) *AllFailedError {
	return &AllFailedError{Causes: causes}
}

func (e *AllFailedError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for provider, cause := range e.Causes {
		parts = append(parts, fmt.Sprintf("%s: %v", provider, cause))
	}
	return fmt.Sprintf("all providers failed: %s", strings.Join(parts, "; "))
}

// IsAllFailed reports whether err is the exhausted-preference-list failure.
func IsAllFailed(err error) bool {
	var afe *AllFailedError
	return errors.As(err, &afe)
}
