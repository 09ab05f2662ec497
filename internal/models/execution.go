// internal/models/execution.go
package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is a state of the execution state machine.
type ExecutionStatus string

const (
	StatusQueued     ExecutionStatus = "queued"
	StatusRunning    ExecutionStatus = "running"
	StatusCompleted  ExecutionStatus = "completed"
	StatusFailed     ExecutionStatus = "failed"
	StatusRolledBack ExecutionStatus = "rolled_back"
)

// Terminal reports whether no forward transition except rollback remains.
func (s ExecutionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRolledBack
}

// FailureReason is the structured reason attached to a failed execution.
type FailureReason struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Attempts int    `json:"attempts,omitempty"`
}

// ReasonCancelled is the failure code of a cooperative cancellation.
const ReasonCancelled = "cancelled"

// ExecutionRecord is the single record owned by one idempotency key.
type ExecutionRecord struct {
	IdempotencyKey  string                 `json:"idempotency_key"`
	WorkflowID      string                 `json:"workflow_id"`
	UserID          string                 `json:"user_id"`
	Status          ExecutionStatus        `json:"status"`
	Progress        int                    `json:"progress"`
	Attempts        int                    `json:"attempts"`
	Inputs          map[string]interface{} `json:"inputs,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	Result          map[string]interface{} `json:"result,omitempty"`
	FailureReason   *FailureReason         `json:"failure_reason,omitempty"`
	HandleID        string                 `json:"handle_id,omitempty"`
	CancelRequested bool                   `json:"cancel_requested,omitempty"`

	// RollbackRequested is held by the single caller compensating the record.
	RollbackRequested bool `json:"rollback_requested,omitempty"`
}

// Clone returns a deep copy through JSON so nested maps are never shared.
func (r ExecutionRecord) Clone() ExecutionRecord {
	data, err := json.Marshal(r)
	if err != nil {
		return r
	}
	var out ExecutionRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return r
	}
	return out
}

// ExecutionRequest is the input to Execute.
type ExecutionRequest struct {
	WorkflowID string                 `json:"workflow_id"`
	UserID     string                 `json:"user_id"`
	Inputs     map[string]interface{} `json:"inputs"`
}
