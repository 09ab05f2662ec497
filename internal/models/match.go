// internal/models/match.go
package models

// MatchTier records which stage of selection produced a match.
type MatchTier string

const (
	TierPrimary        MatchTier = "primary"
	TierTagOnly        MatchTier = "tag_only"
	TierGenericDefault MatchTier = "generic_default"
)

// Compliance status values reported on a match.
const (
	ComplianceClear          = "clear"
	ComplianceReviewRequired = "review_required"
)

// WorkflowMatch is one ranked candidate from a selection call.
type WorkflowMatch struct {
	WorkflowID       string           `json:"workflow_id"`
	Name             string           `json:"name"`
	ConfidenceScore  float64          `json:"confidence_score"`
	MatchReasons     []string         `json:"match_reasons"`
	EstimatedImpact  string           `json:"estimated_impact"`
	Prerequisites    []string         `json:"prerequisites"`
	PrivacyScope     []string         `json:"privacy_scope"`
	ConsentRequired  []string         `json:"consent_required"`
	PreconditionsMet bool             `json:"preconditions_met"`
	RollbackStrategy RollbackStrategy `json:"rollback_strategy"`
	SLOTargets       SLOTargets       `json:"slo_targets"`
	ComplianceStatus string           `json:"compliance_status"`
	Tier             MatchTier        `json:"tier"`
}
