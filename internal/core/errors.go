package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatExecution  ErrorCategory = "execution"  // Runtime failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatRateLimit  ErrorCategory = "rate_limit" // API rate limited
	ErrCatState      ErrorCategory = "state"      // State corruption/conflict
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// Error codes surfaced to callers. Each carries a machine-readable code and
// a human-legible message.
const (
	CodeWorkflowNotFound          = "WORKFLOW_NOT_FOUND"
	CodeInvalidStateTransition    = "INVALID_STATE_TRANSITION"
	CodeInvalidWorkflowType       = "INVALID_WORKFLOW_TYPE"
	CodeUnknownTopic              = "UNKNOWN_TOPIC"
	CodeSessionNotFound           = "SESSION_NOT_FOUND"
	CodeSessionClosed             = "SESSION_CLOSED"
	CodeEscalationNotFound        = "ESCALATION_NOT_FOUND"
	CodeEscalationAlreadyResolved = "ESCALATION_ALREADY_RESOLVED"
	CodeAgentUnavailable          = "AGENT_UNAVAILABLE"
	CodeAgentTimeout              = "AGENT_TIMEOUT"
	CodeAgentResponseInvalid      = "AGENT_RESPONSE_INVALID"
	CodePollTimeout               = "POLL_TIMEOUT"
	CodePollCancelled             = "POLL_CANCELLED"
	CodeRateLimitExceeded         = "RATE_LIMIT_EXCEEDED"
	CodePersistenceCorrupted      = "PERSISTENCE_CORRUPTED"
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrNotFound creates a not-found error.
func ErrNotFound(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNotFound,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrExecution creates an execution error.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrRateLimit creates a rate-limit error carrying the wait hint in seconds.
func ErrRateLimit(waitSeconds int, message string) *DomainError {
	e := &DomainError{
		Category:  ErrCatRateLimit,
		Code:      CodeRateLimitExceeded,
		Message:   message,
		Retryable: true,
	}
	return e.WithDetail("wait_seconds", waitSeconds)
}

// ErrState creates a state corruption error. Fatal for the affected workflow.
func ErrState(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatState,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatInternal,
		Code:      "INTERNAL",
		Message:   message,
		Retryable: false,
	}
}

// CodeOf extracts the domain error code, or empty string for non-domain errors.
func CodeOf(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) && domErr != nil {
		return domErr.Code
	}
	return ""
}

// RateLimitWait extracts the wait-seconds hint from a rate-limit error.
// Returns 0, false for any other error.
func RateLimitWait(err error) (int, bool) {
	var domErr *DomainError
	if !errors.As(err, &domErr) || domErr == nil || domErr.Category != ErrCatRateLimit {
		return 0, false
	}
	if v, ok := domErr.Details["wait_seconds"]; ok {
		if n, ok := v.(int); ok {
			return n, true
		}
	}
	return 0, true
}
