// Package errors provides the standardized error taxonomy for the workflow engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	ErrCodeSchemaValidationFailed ErrorCode = "SCHEMA_VALIDATION_FAILED"
	ErrCodeDuplicateWorkflowID    ErrorCode = "DUPLICATE_WORKFLOW_ID"
	ErrCodeWorkflowNotFound       ErrorCode = "WORKFLOW_NOT_FOUND"

	ErrCodeExecutionNotFound            ErrorCode = "EXECUTION_NOT_FOUND"
	ErrCodeExecutionFailed              ErrorCode = "EXECUTION_FAILED"
	ErrCodeExecutionRetriesExhausted    ErrorCode = "EXECUTION_RETRIES_EXHAUSTED"
	ErrCodeExecutionPortUnavailable     ErrorCode = "EXECUTION_PORT_UNAVAILABLE"
	ErrCodeInvalidTransition            ErrorCode = "INVALID_TRANSITION"
	ErrCodeRollbackNotSupported         ErrorCode = "ROLLBACK_NOT_SUPPORTED"
	ErrCodeIdempotencyStoreFailed       ErrorCode = "IDEMPOTENCY_STORE_FAILED"
	ErrCodeCancellationNotInterruptible ErrorCode = "CANCELLATION_NOT_INTERRUPTIBLE"

	ErrCodeConsentStoreFailed ErrorCode = "CONSENT_STORE_FAILED"
	ErrCodeProfileNotFound    ErrorCode = "PROFILE_NOT_FOUND"
	ErrCodeGenerationFailed   ErrorCode = "GENERATION_FAILED"
	ErrCodeGenerationTimeout  ErrorCode = "GENERATION_TIMEOUT"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Is matches on error code so errors.Is works against sentinel StandardErrors.
func (e *StandardError) Is(target error) bool {
	var t *StandardError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata returns the error with one more metadata entry attached.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

func newError(code ErrorCode, message, details string, retryable bool) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 2. Error Constructors
// ==========================

// NewInvalidInputError creates a non-retryable malformed-request error.
func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Malformed input", details, false)
}

// NewSchemaValidationError reports a workflow definition that failed registry validation.
func NewSchemaValidationError(workflowID string, problems []string) *StandardError {
	return newError(ErrCodeSchemaValidationFailed, "Workflow definition failed schema validation",
		fmt.Sprintf("workflowId: %s, errors: %s", workflowID, strings.Join(problems, "; ")), false).
		WithMetadata("problems", problems)
}

// NewDuplicateWorkflowError reports an attempt to re-register an existing id.
func NewDuplicateWorkflowError(workflowID string) *StandardError {
	return newError(ErrCodeDuplicateWorkflowID, "Workflow id already registered; publish a new version id",
		fmt.Sprintf("workflowId: %s", workflowID), false)
}

// NewWorkflowNotFoundError creates a non-retryable lookup error.
func NewWorkflowNotFoundError(workflowID string) *StandardError {
	return newError(ErrCodeWorkflowNotFound, "Workflow not found in registry",
		fmt.Sprintf("workflowId: %s", workflowID), false)
}

// NewExecutionNotFoundError creates a non-retryable lookup error.
func NewExecutionNotFoundError(key string) *StandardError {
	return newError(ErrCodeExecutionNotFound, "Execution not found",
		fmt.Sprintf("idempotencyKey: %s", key), false)
}

// NewExecutionFailedError wraps a single failed attempt at the execution port.
func NewExecutionFailedError(workflowID string, err error) *StandardError {
	return newError(ErrCodeExecutionFailed, "Workflow execution attempt failed",
		fmt.Sprintf("workflowId: %s, error: %v", workflowID, err), true)
}

// NewRetriesExhaustedError is the terminal failure reported once max_retries is spent.
func NewRetriesExhaustedError(workflowID string, attempts int, err error) *StandardError {
	return newError(ErrCodeExecutionRetriesExhausted, "Workflow execution failed after retries",
		fmt.Sprintf("workflowId: %s, attempts: %d, lastError: %v", workflowID, attempts, err), false).
		WithMetadata("attempts", attempts)
}

// NewExecutionPortUnavailableError reports a port that could not be reached.
func NewExecutionPortUnavailableError(err error) *StandardError {
	return newError(ErrCodeExecutionPortUnavailable, "Execution port unavailable", err.Error(), true)
}

// NewInvalidTransitionError reports a forbidden state machine move.
func NewInvalidTransitionError(from, to string) *StandardError {
	return newError(ErrCodeInvalidTransition, "Invalid execution status transition",
		fmt.Sprintf("from: %s, to: %s", from, to), false)
}

// NewRollbackNotSupportedError is returned when rollback_strategy is none.
func NewRollbackNotSupportedError(workflowID string) *StandardError {
	return newError(ErrCodeRollbackNotSupported, "Workflow does not support rollback",
		fmt.Sprintf("workflowId: %s", workflowID), false)
}

// NewIdempotencyStoreError wraps a storage failure during check-and-create.
func NewIdempotencyStoreError(err error) *StandardError {
	return newError(ErrCodeIdempotencyStoreFailed, "Idempotency store operation failed", err.Error(), true)
}

// NewConsentStoreError wraps a consent lookup failure.
func NewConsentStoreError(userID string, err error) *StandardError {
	return newError(ErrCodeConsentStoreFailed, "Consent store lookup failed",
		fmt.Sprintf("userId: %s, error: %v", userID, err), true)
}

// NewProfileNotFoundError reports a missing user profile.
func NewProfileNotFoundError(userID string) *StandardError {
	return newError(ErrCodeProfileNotFound, "User profile not found",
		fmt.Sprintf("userId: %s", userID), false)
}

// NewGenerationFailedError wraps a text-generation port failure.
func NewGenerationFailedError(err error) *StandardError {
	return newError(ErrCodeGenerationFailed, "Rationale generation failed", err.Error(), true)
}

// NewGenerationTimeoutError reports a text-generation call that ran out of time.
func NewGenerationTimeoutError() *StandardError {
	return newError(ErrCodeGenerationTimeout, "Rationale generation timeout",
		"generation call exceeded timeout threshold", true)
}

// ==========================
// 3. Utility Functions
// ==========================

// GetRetryCount returns the recommended retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeExecutionFailed,
		ErrCodeExecutionPortUnavailable,
		ErrCodeIdempotencyStoreFailed,
		ErrCodeConsentStoreFailed:
		return 3

	case ErrCodeGenerationFailed:
		return 2

	case ErrCodeGenerationTimeout:
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
	case strings.Contains(codeStr, "SCHEMA") || strings.Contains(codeStr, "WORKFLOW"):
		return "REGISTRY"
	case strings.Contains(codeStr, "EXECUTION") || strings.Contains(codeStr, "TRANSITION") ||
		strings.Contains(codeStr, "ROLLBACK") || strings.Contains(codeStr, "IDEMPOTENCY") ||
		strings.Contains(codeStr, "CANCELLATION"):
		return "EXECUTION"
	case strings.Contains(codeStr, "CONSENT") || strings.Contains(codeStr, "PROFILE"):
		return "POLICY"
	case strings.Contains(codeStr, "GENERATION"):
		return "EXPLANATION"
	case strings.Contains(codeStr, "INVALID"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// HTTPStatus maps an error code to the status the API layer responds with.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeSchemaValidationFailed:
		return http.StatusBadRequest
	case ErrCodeWorkflowNotFound, ErrCodeExecutionNotFound, ErrCodeProfileNotFound:
		return http.StatusNotFound
	case ErrCodeDuplicateWorkflowID, ErrCodeInvalidTransition, ErrCodeRollbackNotSupported:
		return http.StatusConflict
	case ErrCodeExecutionRetriesExhausted:
		return http.StatusUnprocessableEntity
	case ErrCodeExecutionPortUnavailable, ErrCodeIdempotencyStoreFailed, ErrCodeConsentStoreFailed:
		return http.StatusServiceUnavailable
	case ErrCodeGenerationTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// AsStandard normalizes any error into a StandardError.
func AsStandard(err error) *StandardError {
	if err == nil {
		return nil
	}
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      "INTERNAL_ERROR",
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code == code
	}
	return false
}
