// internal/workers/execution/report-progress/models.go
package reportprogress

// Event kinds a BPMN process reports back.
const (
	EventProgress  = "progress"
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// Input is read from the job variables.
type Input struct {
	IdempotencyKey string                 `json:"idempotencyKey"`
	Event          string                 `json:"event"`
	Progress       int                    `json:"progress,omitempty"`
	Result         map[string]interface{} `json:"result,omitempty"`
	Message        string                 `json:"message,omitempty"`
}

// Output is merged into the process variables.
type Output struct {
	ExecutionStatus   string `json:"executionStatus"`
	ExecutionProgress int    `json:"executionProgress"`
}
