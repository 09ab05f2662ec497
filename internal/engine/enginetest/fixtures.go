// Package enginetest holds workflow fixtures shared by engine tests and local demos.
package enginetest

import (
	"time"

	"workflow-engine/internal/models"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// SLO returns fully populated targets.
func SLO(p95 int, success float64, retries int) models.SLOTargets {
	return models.SLOTargets{P95LatencyMs: intPtr(p95), SuccessRate: floatPtr(success), MaxRetries: intPtr(retries)}
}

// CancelSubscriptions is gated on linked accounts and at least two subscriptions.
func CancelSubscriptions() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:          "optimize.cancel_subscriptions.v1",
		Name:        "Cancel unused subscriptions",
		Description: "Finds recurring charges with no recent usage and cancels the ones the user selects.",
		Steps: []models.WorkflowStep{
			{Name: "scan_recurring_charges", DurationEstimateMs: 1500, PrivacyScope: []string{"transactions"}},
			{Name: "cancel_selected", DurationEstimateMs: 3000, PrivacyScope: []string{"subscriptions"}, ConsentRequired: []string{"subscription_management"}},
		},
		Metadata: models.WorkflowMetadata{
			IntentTags:             []string{"cancel", "subscriptions", "cancel_subscriptions", "recurring"},
			Preconditions:          []string{"linked_accounts:>=:1", "subscription_count:>=:2"},
			SideEffects:            []string{"cancels recurring merchant charges"},
			IdempotencyKeyStrategy: "userId:workflowId:hash(params):businessDay",
			RollbackStrategy:       models.RollbackNotifyOnly,
			PrivacyScope:           []string{"subscriptions", "transactions"},
			ConsentRequired:        []string{"subscription_management"},
			SLOTargets:             SLO(5000, 0.98, 3),
			TelemetryEvents:        []string{"subscription.cancel.requested", "subscription.cancel.confirmed"},
			RiskLevel:              "low",
			ComplianceRequirements: []string{},
		},
	}
}

// EmergencyFund moves money and can be interrupted mid-run.
func EmergencyFund() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:   "save.emergency_fund.v1",
		Name: "Start an emergency fund",
		Steps: []models.WorkflowStep{
			{Name: "open_savings_bucket", DurationEstimateMs: 800, PrivacyScope: []string{"balances"}},
			{Name: "schedule_transfer", DurationEstimateMs: 1200, ConsentRequired: []string{"transfer_authorization"}},
		},
		Metadata: models.WorkflowMetadata{
			IntentTags:             []string{"save", "savings", "emergency_fund"},
			Preconditions:          []string{"linked_accounts:>=:1", "monthly_income:>=:1000"},
			SideEffects:            []string{"schedules recurring transfer"},
			IdempotencyKeyStrategy: "userId:workflowId:inputs.amount:businessDay",
			RollbackStrategy:       models.RollbackReverseTransfer,
			PrivacyScope:           []string{"balances"},
			ConsentRequired:        []string{"account_access", "transfer_authorization"},
			SLOTargets:             SLO(3000, 0.995, 2),
			TelemetryEvents:        []string{"savings.transfer.scheduled"},
			RiskLevel:              "medium",
			ComplianceRequirements: []string{"reg_e_disclosure"},
			Interruptible:          true,
		},
	}
}

// DebtPayoff requires a minimum credit band.
func DebtPayoff() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:   "debt.payoff.v1",
		Name: "Accelerate debt payoff",
		Steps: []models.WorkflowStep{
			{Name: "rank_balances", DurationEstimateMs: 700, PrivacyScope: []string{"balances", "credit_report"}, ConsentRequired: []string{"credit_pull"}},
			{Name: "schedule_extra_payment", DurationEstimateMs: 1300},
		},
		Metadata: models.WorkflowMetadata{
			IntentTags:             []string{"debt", "payoff", "interest"},
			Preconditions:          []string{"credit_score:in:fair,good,excellent"},
			SideEffects:            []string{"schedules extra loan payment"},
			IdempotencyKeyStrategy: "userId:workflowId:hash(params):businessDay",
			RollbackStrategy:       models.RollbackReverseTransfer,
			PrivacyScope:           []string{"balances", "credit_report"},
			ConsentRequired:        []string{"account_access"},
			SLOTargets:             SLO(4000, 0.99, 3),
			TelemetryEvents:        []string{},
			RiskLevel:              "medium",
			ComplianceRequirements: []string{"reg_z_disclosure"},
		},
	}
}

// SpendingReview is an ungated, low-risk generic default.
func SpendingReview() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:    "budget.spending_review.v1",
		Name:  "Review monthly spending",
		Steps: []models.WorkflowStep{{Name: "summarize_spending", DurationEstimateMs: 900, PrivacyScope: []string{"transactions"}}},
		Metadata: models.WorkflowMetadata{
			IntentTags:             []string{"budget", "spending", "review"},
			Preconditions:          []string{},
			SideEffects:            []string{},
			IdempotencyKeyStrategy: "userId:workflowId:businessDay",
			RollbackStrategy:       models.RollbackNone,
			PrivacyScope:           []string{"transactions"},
			ConsentRequired:        []string{},
			SLOTargets:             SLO(1500, 0.999, 1),
			TelemetryEvents:        []string{"budget.review.generated"},
			RiskLevel:              "low",
			ComplianceRequirements: []string{},
			GenericDefault:         true,
		},
	}
}

// RoundUp is a generic default that still declares a precondition.
func RoundUp() models.WorkflowDefinition {
	return models.WorkflowDefinition{
		ID:    "save.round_up.v1",
		Name:  "Round-up savings",
		Steps: []models.WorkflowStep{{Name: "enable_round_up", DurationEstimateMs: 600, ConsentRequired: []string{"account_access"}}},
		Metadata: models.WorkflowMetadata{
			IntentTags:             []string{"save", "round_up"},
			Preconditions:          []string{"linked_accounts:>=:1"},
			SideEffects:            []string{"moves spare change to savings"},
			IdempotencyKeyStrategy: "userId:workflowId:businessDay",
			RollbackStrategy:       models.RollbackPartialRefund,
			PrivacyScope:           []string{"transactions", "balances"},
			ConsentRequired:        []string{"account_access"},
			SLOTargets:             SLO(2000, 0.99, 3),
			TelemetryEvents:        []string{},
			RiskLevel:              "low",
			ComplianceRequirements: []string{},
			GenericDefault:         true,
		},
	}
}

// All returns every fixture.
func All() []models.WorkflowDefinition {
	return []models.WorkflowDefinition{CancelSubscriptions(), EmergencyFund(), DebtPayoff(), SpendingReview(), RoundUp()}
}

// GrantAll returns active grants for every consent type used by the fixtures.
func GrantAll(at time.Time) []models.ConsentRecord {
	types := []string{"account_access", "transfer_authorization", "subscription_management", "credit_pull", "data_sharing"}
	out := make([]models.ConsentRecord, len(types))
	for i, t := range types {
		out[i] = models.ConsentRecord{ConsentType: t, Granted: true, GrantedAt: at.Add(-24 * time.Hour)}
	}
	return out
}
