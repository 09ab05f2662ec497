// internal/workers/engine/classify-intent/models.go
package classifyintent

import "workflow-engine/internal/models"

type Input struct {
	Question string                 `json:"question"`
	Context  map[string]interface{} `json:"context"`
}

// Output flattens the routing fields so exclusive gateways can branch on them directly.
type Output struct {
	Classification models.Classification `json:"classification"`
	Category       string                `json:"category"`
	SubCategory    string                `json:"subCategory"`
	Confidence     float64               `json:"confidence"`
	Priority       string                `json:"priority"`
}
