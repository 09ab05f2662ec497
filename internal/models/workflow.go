// internal/models/workflow.go
package models

import "strings"

// RollbackStrategy declares how a workflow's side effects are undone.
type RollbackStrategy string

const (
	RollbackReverseTransfer RollbackStrategy = "reverse_transfer"
	RollbackNotifyOnly      RollbackStrategy = "notify_only"
	RollbackPartialRefund   RollbackStrategy = "partial_refund"
	RollbackNone            RollbackStrategy = "none"
)

// WorkflowStep is one ordered unit of a workflow.
type WorkflowStep struct {
	Name               string   `json:"name"`
	DurationEstimateMs int      `json:"duration_estimate_ms"`
	PrivacyScope       []string `json:"privacy_scope,omitempty"`
	ConsentRequired    []string `json:"consent_required,omitempty"`
}

// SLOTargets are pointers so that absence can be told apart from zero.
type SLOTargets struct {
	P95LatencyMs *int     `json:"p95_latency_ms,omitempty"`
	SuccessRate  *float64 `json:"success_rate,omitempty"`
	MaxRetries   *int     `json:"max_retries,omitempty"`
}

// Retries returns max_retries or zero when unset.
func (s SLOTargets) Retries() int {
	if s.MaxRetries == nil {
		return 0
	}
	return *s.MaxRetries
}

// WorkflowMetadata is the hardened policy block of a definition.
type WorkflowMetadata struct {
	IntentTags             []string         `json:"intent_tags"`
	Preconditions          []string         `json:"preconditions"`
	SideEffects            []string         `json:"side_effects"`
	IdempotencyKeyStrategy string           `json:"idempotency_key_strategy"`
	RollbackStrategy       RollbackStrategy `json:"rollback_strategy"`
	PrivacyScope           []string         `json:"privacy_scope"`
	ConsentRequired        []string         `json:"consent_required"`
	SLOTargets             SLOTargets       `json:"slo_targets"`
	TelemetryEvents        []string         `json:"telemetry_events"`
	RiskLevel              string           `json:"risk_level"`
	ComplianceRequirements []string         `json:"compliance_requirements"`
	GenericDefault         bool             `json:"generic_default,omitempty"`

	// Interruptible marks workflows whose port run can be stopped mid-flight.
	Interruptible bool `json:"interruptible,omitempty"`
}

// WorkflowDefinition is an executable automation identified by category.action.vN.
type WorkflowDefinition struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Steps       []WorkflowStep   `json:"steps"`
	Metadata    WorkflowMetadata `json:"metadata"`
}

// Category is the first segment of the versioned id.
func (w WorkflowDefinition) Category() string {
	if i := strings.IndexByte(w.ID, '.'); i > 0 {
		return w.ID[:i]
	}
	return w.ID
}

// Action is the middle segment of the versioned id.
func (w WorkflowDefinition) Action() string {
	parts := strings.Split(w.ID, ".")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}

// EstimatedDurationMs sums the step estimates.
func (w WorkflowDefinition) EstimatedDurationMs() int {
	total := 0
	for _, s := range w.Steps {
		total += s.DurationEstimateMs
	}
	return total
}

// AllConsentRequired unions workflow-level and step-level consent requirements, first-seen order.
func (w WorkflowDefinition) AllConsentRequired() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(items []string) {
		for _, c := range items {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	add(w.Metadata.ConsentRequired)
	for _, s := range w.Steps {
		add(s.ConsentRequired)
	}
	return out
}

// Clone returns a deep copy.
func (w WorkflowDefinition) Clone() WorkflowDefinition {
	c := w
	c.Steps = make([]WorkflowStep, len(w.Steps))
	for i, s := range w.Steps {
		s.PrivacyScope = cloneStrings(s.PrivacyScope)
		s.ConsentRequired = cloneStrings(s.ConsentRequired)
		c.Steps[i] = s
	}

	m := w.Metadata
	m.IntentTags = cloneStrings(m.IntentTags)
	m.Preconditions = cloneStrings(m.Preconditions)
	m.SideEffects = cloneStrings(m.SideEffects)
	m.PrivacyScope = cloneStrings(m.PrivacyScope)
	m.ConsentRequired = cloneStrings(m.ConsentRequired)
	m.TelemetryEvents = cloneStrings(m.TelemetryEvents)
	m.ComplianceRequirements = cloneStrings(m.ComplianceRequirements)
	if m.SLOTargets.P95LatencyMs != nil {
		v := *m.SLOTargets.P95LatencyMs
		m.SLOTargets.P95LatencyMs = &v
	}
	if m.SLOTargets.SuccessRate != nil {
		v := *m.SLOTargets.SuccessRate
		m.SLOTargets.SuccessRate = &v
	}
	if m.SLOTargets.MaxRetries != nil {
		v := *m.SLOTargets.MaxRetries
		m.SLOTargets.MaxRetries = &v
	}
	c.Metadata = m
	return c
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
