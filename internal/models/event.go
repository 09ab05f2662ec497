// internal/models/event.go
package models

import "time"

// EventType names an audit event.
type EventType string

const (
	EventClassified          EventType = "classification.completed"
	EventSelected            EventType = "selection.completed"
	EventExecutionQueued     EventType = "execution.queued"
	EventExecutionRunning    EventType = "execution.running"
	EventExecutionProgress   EventType = "execution.progress"
	EventExecutionCompleted  EventType = "execution.completed"
	EventExecutionFailed     EventType = "execution.failed"
	EventExecutionRolledBack EventType = "execution.rolled_back"
	EventExecutionDuplicate  EventType = "execution.duplicate"
	EventExecutionCancel     EventType = "execution.cancel_requested"
	EventWorkflowRegistered  EventType = "registry.workflow_registered"
	EventExplanationServed   EventType = "explanation.served"
)

// AuditEvent is one fire-and-forget telemetry record.
type AuditEvent struct {
	ID             string                 `json:"id"`
	Type           EventType              `json:"type"`
	Timestamp      time.Time              `json:"timestamp"`
	UserID         string                 `json:"user_id,omitempty"`
	WorkflowID     string                 `json:"workflow_id,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Attributes     map[string]interface{} `json:"attributes,omitempty"`

	// DeclaredEvents carries the workflow's telemetry_events for downstream routing.
	DeclaredEvents []string `json:"declared_events,omitempty"`
}

// ExecutionNotice is sent to humans when an execution needs attention.
type ExecutionNotice struct {
	Kind           string `json:"kind"`
	UserID         string `json:"user_id"`
	WorkflowID     string `json:"workflow_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

// Notice kinds.
const (
	NoticeRetriesExhausted = "retries_exhausted"
	NoticeRolledBack       = "rolled_back"
)
