// internal/common/errors/errors.go
// Package errors provides standardized error handling for the orchestration engine.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Data-quality errors
const (
	ErrCodeMissingField       ErrorCode = "DATA_QUALITY_MISSING_FIELD"
	ErrCodeInsufficientVolume ErrorCode = "DATA_QUALITY_INSUFFICIENT_VOLUME"
	ErrCodeStaleData          ErrorCode = "DATA_QUALITY_STALE_DATA"
	ErrCodeMalformedInput     ErrorCode = "DATA_QUALITY_MALFORMED_INPUT"
)

// External-service errors
const (
	ErrCodeProviderFailure ErrorCode = "EXTERNAL_SERVICE_PROVIDER_FAILURE"
	ErrCodeProviderTimeout ErrorCode = "EXTERNAL_SERVICE_TIMEOUT"
	ErrCodeRateLimited     ErrorCode = "EXTERNAL_SERVICE_RATE_LIMITED"
	ErrCodeAuthFailure     ErrorCode = "EXTERNAL_SERVICE_AUTH_FAILURE"
)

// Processing errors
const (
	ErrCodeAgentExecutionFailed   ErrorCode = "PROCESSING_AGENT_EXECUTION_FAILED"
	ErrCodeConfidenceUncomputable ErrorCode = "PROCESSING_CONFIDENCE_UNCOMPUTABLE"
	ErrCodeTimeoutExceeded        ErrorCode = "PROCESSING_TIMEOUT_EXCEEDED"
	ErrCodeResourceLimitExceeded  ErrorCode = "PROCESSING_RESOURCE_LIMIT_EXCEEDED"
)

// Query errors
const (
	ErrCodeQueryUnparseable  ErrorCode = "QUERY_UNPARSEABLE"
	ErrCodeUnsupportedIntent ErrorCode = "QUERY_UNSUPPORTED_INTENT"
)

// System errors
const (
	ErrCodeInternal      ErrorCode = "SYSTEM_INTERNAL"
	ErrCodeStoreFailure  ErrorCode = "SYSTEM_STORE_FAILURE"
	ErrCodeCacheFailure  ErrorCode = "SYSTEM_CACHE_FAILURE"
	ErrCodeConfiguration ErrorCode = "SYSTEM_CONFIGURATION"
)

// Authorization errors
const (
	ErrCodeTenantIsolationViolation ErrorCode = "AUTHORIZATION_TENANT_ISOLATION_VIOLATION"
)

// StandardError represents a structured application error. Every error
// carries a recoverable flag and a human-readable suggested action.
type StandardError struct {
	Code            ErrorCode              `json:"code"`
	Message         string                 `json:"message"`
	Details         string                 `json:"details,omitempty"`
	Recoverable     bool                   `json:"recoverable"`
	SuggestedAction string                 `json:"suggestedAction,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// AsStandardError normalizes any error to a StandardError.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:            ErrCodeInternal,
		Message:         "Internal error",
		Details:         err.Error(),
		Recoverable:     false,
		SuggestedAction: "Contact support if the problem persists",
		Timestamp:       time.Now().UTC(),
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewMissingFieldError creates a non-recoverable data-quality error.
func NewMissingFieldError(field string) *StandardError {
	return &StandardError{
		Code:            ErrCodeMissingField,
		Message:         "Required field missing from agent data",
		Details:         fmt.Sprintf("field: %s", field),
		Recoverable:     false,
		SuggestedAction: "Verify the ingestion pipeline populated this field",
		Timestamp:       time.Now().UTC(),
	}
}

// NewInsufficientVolumeError creates a recoverable data-quality error.
func NewInsufficientVolumeError(entity string, got, want int) *StandardError {
	return &StandardError{
		Code:            ErrCodeInsufficientVolume,
		Message:         "Not enough data for a reliable result",
		Details:         fmt.Sprintf("entity: %s, rows: %d, minimum: %d", entity, got, want),
		Recoverable:     true,
		SuggestedAction: "Retry after more data has been ingested",
		Timestamp:       time.Now().UTC(),
	}
}

// NewStaleDataError creates a recoverable data-quality error.
func NewStaleDataError(category string, age time.Duration) *StandardError {
	return &StandardError{
		Code:            ErrCodeStaleData,
		Message:         "Underlying data exceeds its freshness window",
		Details:         fmt.Sprintf("category: %s, age: %s", category, age),
		Recoverable:     true,
		SuggestedAction: "Refresh the source data before re-running",
		Timestamp:       time.Now().UTC(),
	}
}

// NewMalformedInputError creates a non-recoverable data-quality error.
func NewMalformedInputError(details string) *StandardError {
	return &StandardError{
		Code:            ErrCodeMalformedInput,
		Message:         "Input payload failed validation",
		Details:         details,
		Recoverable:     false,
		SuggestedAction: "Fix the request payload and resubmit",
		Timestamp:       time.Now().UTC(),
	}
}

// NewProviderFailureError creates a recoverable external-service error.
func NewProviderFailureError(provider string, err error) *StandardError {
	return &StandardError{
		Code:            ErrCodeProviderFailure,
		Message:         fmt.Sprintf("External provider '%s' failed", provider),
		Details:         err.Error(),
		Recoverable:     true,
		SuggestedAction: "Cached results will be preferred until the provider recovers",
		Timestamp:       time.Now().UTC(),
	}
}

// NewProviderTimeoutError creates a recoverable external-service timeout.
func NewProviderTimeoutError(provider string) *StandardError {
	return &StandardError{
		Code:            ErrCodeProviderTimeout,
		Message:         fmt.Sprintf("External provider '%s' timed out", provider),
		Details:         "call exceeded its deadline",
		Recoverable:     true,
		SuggestedAction: "Retry; cached results will be preferred meanwhile",
		Timestamp:       time.Now().UTC(),
	}
}

// NewRateLimitedError creates a recoverable external-service error.
func NewRateLimitedError(provider string) *StandardError {
	return &StandardError{
		Code:            ErrCodeRateLimited,
		Message:         fmt.Sprintf("External provider '%s' rate limited the request", provider),
		Recoverable:     true,
		SuggestedAction: "Back off and retry later",
		Timestamp:       time.Now().UTC(),
	}
}

// NewAuthFailureError creates a non-recoverable external-service error.
func NewAuthFailureError(provider, details string) *StandardError {
	return &StandardError{
		Code:            ErrCodeAuthFailure,
		Message:         fmt.Sprintf("Authentication with '%s' failed", provider),
		Details:         details,
		Recoverable:     false,
		SuggestedAction: "Check provider credentials in configuration",
		Timestamp:       time.Now().UTC(),
	}
}

// NewAgentExecutionFailedError creates a recoverable processing error.
func NewAgentExecutionFailedError(agentID string, err error) *StandardError {
	return &StandardError{
		Code:            ErrCodeAgentExecutionFailed,
		Message:         fmt.Sprintf("Agent '%s' execution failed", agentID),
		Details:         err.Error(),
		Recoverable:     true,
		SuggestedAction: "The report was built from the remaining agents",
		Metadata:        map[string]interface{}{"agentId": agentID},
		Timestamp:       time.Now().UTC(),
	}
}

// NewConfidenceUncomputableError creates a recoverable processing error.
func NewConfidenceUncomputableError(details string) *StandardError {
	return &StandardError{
		Code:            ErrCodeConfidenceUncomputable,
		Message:         "Confidence could not be computed",
		Details:         details,
		Recoverable:     true,
		SuggestedAction: "Treat the report confidence as indicative only",
		Timestamp:       time.Now().UTC(),
	}
}

// NewTimeoutExceededError creates a recoverable processing timeout. Timeout
// errors are the only class allowed to suggest a mode downgrade.
func NewTimeoutExceededError(scope string, elapsed, budget time.Duration) *StandardError {
	return &StandardError{
		Code:            ErrCodeTimeoutExceeded,
		Message:         fmt.Sprintf("Execution timeout exceeded in %s", scope),
		Details:         fmt.Sprintf("elapsed: %s, budget: %s", elapsed, budget),
		Recoverable:     true,
		SuggestedAction: "Re-run in quick mode for a faster, narrower answer",
		Timestamp:       time.Now().UTC(),
	}
}

// NewResourceLimitExceededError creates a recoverable processing error for a
// blown wall-clock budget. Like timeouts, it may suggest a mode downgrade.
func NewResourceLimitExceededError(elapsed, budget time.Duration) *StandardError {
	return &StandardError{
		Code:            ErrCodeResourceLimitExceeded,
		Message:         "Execution exceeded the wall-clock budget",
		Details:         fmt.Sprintf("elapsed: %s, budget: %s", elapsed, budget),
		Recoverable:     true,
		SuggestedAction: "Re-run in quick mode or narrow the query",
		Timestamp:       time.Now().UTC(),
	}
}

// NewQueryUnparseableError creates a non-recoverable query error.
func NewQueryUnparseableError(details string) *StandardError {
	return &StandardError{
		Code:            ErrCodeQueryUnparseable,
		Message:         "Query text could not be parsed",
		Details:         details,
		Recoverable:     false,
		SuggestedAction: "Rephrase the question",
		Timestamp:       time.Now().UTC(),
	}
}

// NewUnsupportedIntentError creates a non-recoverable query error.
func NewUnsupportedIntentError(intent string) *StandardError {
	return &StandardError{
		Code:            ErrCodeUnsupportedIntent,
		Message:         "Query intent is not supported",
		Details:         fmt.Sprintf("intent: %s", intent),
		Recoverable:     false,
		SuggestedAction: "Ask about pricing, sentiment or demand instead",
		Timestamp:       time.Now().UTC(),
	}
}

// NewStoreFailureError creates a recoverable system error.
func NewStoreFailureError(err error) *StandardError {
	return &StandardError{
		Code:            ErrCodeStoreFailure,
		Message:         "Relational store operation failed",
		Details:         err.Error(),
		Recoverable:     true,
		SuggestedAction: "Retry once the store is reachable",
		Timestamp:       time.Now().UTC(),
	}
}

// NewCacheFailureError creates a recoverable system error.
func NewCacheFailureError(err error) *StandardError {
	return &StandardError{
		Code:            ErrCodeCacheFailure,
		Message:         "Cache backing store operation failed",
		Details:         err.Error(),
		Recoverable:     true,
		SuggestedAction: "The in-memory fallback will serve until the store recovers",
		Timestamp:       time.Now().UTC(),
	}
}

// NewConfigurationError creates a non-recoverable system error.
func NewConfigurationError(details string) *StandardError {
	return &StandardError{
		Code:            ErrCodeConfiguration,
		Message:         "Invalid configuration",
		Details:         details,
		Recoverable:     false,
		SuggestedAction: "Fix the configuration and restart",
		Timestamp:       time.Now().UTC(),
	}
}

// NewTenantIsolationViolationError creates a fatal authorization error.
// Cross-tenant key access must be structurally impossible; any detected
// violation is non-recoverable.
func NewTenantIsolationViolationError(tenantID, key string) *StandardError {
	return &StandardError{
		Code:            ErrCodeTenantIsolationViolation,
		Message:         "Cross-tenant access detected",
		Details:         fmt.Sprintf("tenant: %s, key: %s", tenantID, key),
		Recoverable:     false,
		SuggestedAction: "Report this incident; the request was aborted",
		Timestamp:       time.Now().UTC(),
	}
}

// ==========================
// 3. Retry & Category Tables
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeProviderFailure,
		ErrCodeStoreFailure,
		ErrCodeCacheFailure,
		ErrCodeAgentExecutionFailed:
		return 3

	case ErrCodeProviderTimeout,
		ErrCodeRateLimited:
		return 2

	case ErrCodeTimeoutExceeded,
		ErrCodeInsufficientVolume,
		ErrCodeStaleData:
		return 1

	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "DATA_QUALITY"):
		return "DATA_QUALITY"
	case strings.HasPrefix(codeStr, "EXTERNAL_SERVICE"):
		return "EXTERNAL_SERVICE"
	case strings.HasPrefix(codeStr, "PROCESSING"):
		return "PROCESSING"
	case strings.HasPrefix(codeStr, "QUERY"):
		return "QUERY"
	case strings.HasPrefix(codeStr, "SYSTEM"):
		return "SYSTEM"
	case strings.HasPrefix(codeStr, "AUTHORIZATION"):
		return "AUTHORIZATION"
	default:
		return "OTHER"
	}
}

// SuggestsModeDowngrade reports whether the error class is permitted to
// recommend re-running in quick mode. Only resource-limit and timeout
// violations qualify.
func SuggestsModeDowngrade(code ErrorCode) bool {
	return code == ErrCodeTimeoutExceeded || code == ErrCodeResourceLimitExceeded
}
