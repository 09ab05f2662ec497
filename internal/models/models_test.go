package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, PriorityCritical.Rank(), PriorityHigh.Rank())
	assert.Greater(t, PriorityHigh.Rank(), PriorityMedium.Rank())
	assert.Greater(t, PriorityMedium.Rank(), PriorityLow.Rank())
	assert.Equal(t, 0, Priority("urgent").Rank())
}

func TestWorkflowDefinition_IDParts(t *testing.T) {
	def := WorkflowDefinition{ID: "optimize.cancel_subscriptions.v1"}
	assert.Equal(t, "optimize", def.Category())
	assert.Equal(t, "cancel_subscriptions", def.Action())
}

func TestWorkflowDefinition_CloneIsDeep(t *testing.T) {
	retries := 3
	def := WorkflowDefinition{
		ID:    "save.round_up.v1",
		Steps: []WorkflowStep{{Name: "link", ConsentRequired: []string{"account_access"}}},
		Metadata: WorkflowMetadata{
			IntentTags: []string{"save"},
			SLOTargets: SLOTargets{MaxRetries: &retries},
		},
	}

	c := def.Clone()
	c.Steps[0].ConsentRequired[0] = "changed"
	c.Metadata.IntentTags[0] = "changed"
	*c.Metadata.SLOTargets.MaxRetries = 9

	assert.Equal(t, "account_access", def.Steps[0].ConsentRequired[0])
	assert.Equal(t, "save", def.Metadata.IntentTags[0])
	assert.Equal(t, 3, def.Metadata.SLOTargets.Retries())
}

func TestAllConsentRequired_UnionsSteps(t *testing.T) {
	def := WorkflowDefinition{
		Steps: []WorkflowStep{
			{Name: "a", ConsentRequired: []string{"account_access", "transfer_authorization"}},
			{Name: "b", ConsentRequired: []string{"account_access"}},
		},
		Metadata: WorkflowMetadata{ConsentRequired: []string{"data_sharing", "account_access"}},
	}
	assert.Equal(t, []string{"data_sharing", "account_access", "transfer_authorization"}, def.AllConsentRequired())
}

func TestConsentRecord_ActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, ConsentRecord{Granted: true}.ActiveAt(now))
	assert.True(t, ConsentRecord{Granted: true, ExpiresAt: &future}.ActiveAt(now))
	assert.False(t, ConsentRecord{Granted: true, ExpiresAt: &past}.ActiveAt(now))
	assert.False(t, ConsentRecord{Granted: false}.ActiveAt(now))
}

func TestExecutionStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusRolledBack.Terminal())
}

func TestExecutionRecord_CloneDetachesMaps(t *testing.T) {
	rec := ExecutionRecord{IdempotencyKey: "k", Inputs: map[string]interface{}{"amount": "10"}}
	c := rec.Clone()
	c.Inputs["amount"] = "20"
	assert.Equal(t, "10", rec.Inputs["amount"])
}
