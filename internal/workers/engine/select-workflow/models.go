// internal/workers/engine/select-workflow/models.go
package selectworkflow

import "workflow-engine/internal/models"

type Input struct {
	Question       string                 `json:"question,omitempty"`
	Classification *models.Classification `json:"classification,omitempty"`
	Context        map[string]interface{} `json:"context"`
	UserID         string                 `json:"userId"`
	Explain        bool                   `json:"explain,omitempty"`
}

type Output struct {
	Matches       []models.WorkflowMatch `json:"matches"`
	MatchCount    int                    `json:"matchCount"`
	TopWorkflowID string                 `json:"topWorkflowId"`
	TopScore      float64                `json:"topScore"`

	// ReadyToRun is true when the top match has every precondition met and needs no review.
	ReadyToRun  bool              `json:"readyToRun"`
	Explanation *models.Rationale `json:"explanation,omitempty"`
}
