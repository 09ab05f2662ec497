package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetRetryCount(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeExecutionFailed, 3},
		{ErrCodeExecutionPortUnavailable, 3},
		{ErrCodeIdempotencyStoreFailed, 3},
		{ErrCodeGenerationFailed, 2},
		{ErrCodeGenerationTimeout, 1},
		{ErrCodeSchemaValidationFailed, 0},
		{ErrCodeExecutionRetriesExhausted, 0},
		{ErrCodeInvalidInput, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, GetRetryCount(tt.code))
			assert.Equal(t, tt.expected > 0, IsRetryableErrorCode(tt.code))
		})
	}
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "REGISTRY", GetErrorCategory(ErrCodeSchemaValidationFailed))
	assert.Equal(t, "REGISTRY", GetErrorCategory(ErrCodeDuplicateWorkflowID))
	assert.Equal(t, "EXECUTION", GetErrorCategory(ErrCodeExecutionRetriesExhausted))
	assert.Equal(t, "EXECUTION", GetErrorCategory(ErrCodeInvalidTransition))
	assert.Equal(t, "POLICY", GetErrorCategory(ErrCodeConsentStoreFailed))
	assert.Equal(t, "EXPLANATION", GetErrorCategory(ErrCodeGenerationTimeout))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeInvalidInput))
	assert.Equal(t, "OTHER", GetErrorCategory("SOMETHING_ELSE"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrCodeSchemaValidationFailed))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(ErrCodeExecutionNotFound))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrCodeDuplicateWorkflowID))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(ErrCodeExecutionRetriesExhausted))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrCodeIdempotencyStoreFailed))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus("INTERNAL_ERROR"))
}

func TestStandardError_IsAndAs(t *testing.T) {
	err := fmt.Errorf("register: %w", NewDuplicateWorkflowError("save.sweep.v1"))

	assert.True(t, errors.Is(err, &StandardError{Code: ErrCodeDuplicateWorkflowID}))
	assert.False(t, errors.Is(err, &StandardError{Code: ErrCodeWorkflowNotFound}))
	assert.True(t, HasCode(err, ErrCodeDuplicateWorkflowID))

	std := AsStandard(err)
	assert.Equal(t, ErrCodeDuplicateWorkflowID, std.Code)
	assert.Contains(t, std.Error(), "save.sweep.v1")
}

func TestAsStandard_WrapsPlainErrors(t *testing.T) {
	assert.Nil(t, AsStandard(nil))

	std := AsStandard(errors.New("socket closed"))
	assert.Equal(t, ErrorCode("INTERNAL_ERROR"), std.Code)
	assert.Equal(t, "socket closed", std.Details)
	assert.False(t, std.Retryable)
}

func TestNewSchemaValidationError_CarriesProblems(t *testing.T) {
	err := NewSchemaValidationError("optimize.x.v1", []string{"metadata: rollback_strategy is required", "id: bad"})
	assert.Equal(t, []string{"metadata: rollback_strategy is required", "id: bad"}, err.Metadata["problems"])
	assert.Contains(t, err.Details, "rollback_strategy is required; id: bad")
}

func TestConvertToBPMNError(t *testing.T) {
	bpmn := ConvertToBPMNError(NewExecutionFailedError("save.sweep.v1", errors.New("timeout")))
	assert.Equal(t, "EXECUTION_FAILED", bpmn.Code)
	assert.Equal(t, 3, bpmn.Retries)
	assert.True(t, bpmn.Retryable)

	vars := bpmn.ToErrorVariables()
	assert.Equal(t, "EXECUTION_FAILED", vars["errorCode"])
	assert.Equal(t, "EXECUTION_FAILED", vars["originalErrorCode"])

	nonRetryable := ConvertToBPMNError(NewInvalidInputError("missing idempotencyKey"))
	assert.Equal(t, 0, nonRetryable.Retries)
}
