// internal/models/rationale.go
package models

// Rationale explains why a workflow was recommended.
type Rationale struct {
	WhyRecommended    string   `json:"why_recommended"`
	KeyConsiderations []string `json:"key_considerations"`
	NuanceGuidance    string   `json:"nuance_guidance"`
	ConfidenceScore   float64  `json:"confidence_score"`
	RiskAssessment    string   `json:"risk_assessment"`

	// Source names the layer that produced the text: template, similarity, generated or fallback.
	Source string `json:"source,omitempty"`
}

// ExplanationRequest is the input to the explanation cache.
type ExplanationRequest struct {
	Classification     Classification `json:"classification"`
	Match              WorkflowMatch  `json:"match"`
	Profile            UserProfile    `json:"profile"`
	RecommendationText string         `json:"recommendation_text,omitempty"`
}
