package types

import (
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing pipeline errors.
type ErrorCode string

// Complete error code constants.
// Handlers MUST use these constants instead of hardcoded strings so the
// orchestrator's Catch/Retry configuration can key on stable values.
const (
	// Event shape
	ErrCodeMalformedEvent ErrorCode = "malformed_event"

	// Configuration resolution (SSM parameter / Secrets Manager secret)
	ErrCodeConfigParameter ErrorCode = "configuration_parameter_unresolved"
	ErrCodeConfigSecret    ErrorCode = "configuration_secret_unresolved"

	// Upstream lookups (Stripe)
	ErrCodeLookupFailed        ErrorCode = "upstream_lookup_failed"
	ErrCodeCustomerNotFound    ErrorCode = "upstream_customer_not_found"
	ErrCodeCustomerUnresolved  ErrorCode = "upstream_customer_resolution_exhausted"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"

	// Derivation
	ErrCodeValidationMissingSubscription ErrorCode = "validation_missing_subscription"
	ErrCodeValidationMissingCustomer     ErrorCode = "validation_missing_customer"
	ErrCodeValidationMissingEventType    ErrorCode = "validation_missing_event_type"
	ErrCodeValidationMissingEmail        ErrorCode = "validation_missing_email"

	// Dispatch
	ErrCodeUnsupportedEventType ErrorCode = "unsupported_event_type"

	// Storage
	ErrCodeStorageOperation ErrorCode = "storage_operation_failed"

	// Catch-all
	ErrCodeProcessing ErrorCode = "processing_unexpected_error"
)

// Retryable reports whether the orchestrator may safely re-run the whole
// invocation for this error class. The pipeline itself retries nothing except
// the customer lookup; everything else is surfaced and left to the state
// machine's Retry configuration, which keys on this classification.
//
// Validation and dispatch failures are deterministic: replaying the same
// event reproduces them, so they are not retryable.
func (c ErrorCode) Retryable() bool {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return false
	case c == ErrCodeMalformedEvent, c == ErrCodeUnsupportedEventType:
		return false
	case c == ErrCodeCustomerUnresolved:
		// Five in-process attempts already failed; a fresh invocation gets a
		// fresh backoff window, so the orchestrator may still retry.
		return true
	case strings.HasPrefix(s, "upstream_"), strings.HasPrefix(s, "configuration_"):
		return true
	case c == ErrCodeStorageOperation, c == ErrCodeProcessing:
		return true
	default:
		return true
	}
}

// AppError is the standard error type used throughout the pipeline.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, orchestrator retry classification, and error
// chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the orchestrator may re-run the invocation.
func (e *AppError) Retryable() bool {
	return e.Code.Retryable()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
