// Package registry holds the validated, append-only workflow catalog.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/common/validation"
	"workflow-engine/internal/engine/precondition"
	"workflow-engine/internal/models"
)

//go:embed workflow_schema.json
var workflowSchema string

// Policy decides what happens to definitions with incomplete SLO targets.
type Policy string

const (
	// PolicyPermissive injects default SLO targets and logs a warning.
	PolicyPermissive Policy = "permissive"
	// PolicyStrict rejects definitions without explicit SLO targets.
	PolicyStrict Policy = "strict"
)

// Default SLO values injected under the permissive policy.
const (
	DefaultP95LatencyMs = 2000
	DefaultSuccessRate  = 0.99
	DefaultMaxRetries   = 3
)

// Registry is an injected, concurrency-safe catalog instance.
type Registry struct {
	mu        sync.RWMutex
	workflows map[string]models.WorkflowDefinition
	validator *validation.Validator
	policy    Policy
	logger    logger.Logger
}

// New creates an empty registry whose Register uses defaultPolicy.
func New(defaultPolicy Policy, log logger.Logger) *Registry {
	if defaultPolicy == "" {
		defaultPolicy = PolicyPermissive
	}
	return &Registry{
		workflows: make(map[string]models.WorkflowDefinition),
		validator: validation.MustValidator(workflowSchema),
		policy:    defaultPolicy,
		logger:    log.Named("registry"),
	}
}

// Register validates and stores def under the registry's default policy.
func (r *Registry) Register(def models.WorkflowDefinition) error {
	return r.RegisterWithPolicy(def, r.policy)
}

// RegisterWithPolicy validates def, applies SLO defaults per policy and stores a private copy.
// Registered ids are never replaced; publish a new version id instead.
func (r *Registry) RegisterWithPolicy(def models.WorkflowDefinition, policy Policy) error {
	def = def.Clone()

	if problems := r.validate(def); len(problems) > 0 {
		metrics.RegistryRegistrationsTotal.WithLabelValues("invalid").Inc()
		return errors.NewSchemaValidationError(def.ID, problems)
	}

	if err := r.applySLOPolicy(&def, policy); err != nil {
		metrics.RegistryRegistrationsTotal.WithLabelValues("invalid").Inc()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[def.ID]; exists {
		metrics.RegistryRegistrationsTotal.WithLabelValues("duplicate").Inc()
		return errors.NewDuplicateWorkflowError(def.ID)
	}
	r.workflows[def.ID] = def
	metrics.RegistryRegistrationsTotal.WithLabelValues("registered").Inc()

	r.logger.Info("workflow registered", map[string]interface{}{
		"workflowId": def.ID,
		"policy":     string(policy),
		"steps":      len(def.Steps),
	})
	return nil
}

func (r *Registry) validate(def models.WorkflowDefinition) []string {
	// Round-trip through JSON so nil slices surface as null, the same as absent keys in a file.
	raw, err := json.Marshal(def)
	if err != nil {
		return []string{fmt.Sprintf("(root): %v", err)}
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return []string{fmt.Sprintf("(root): %v", err)}
	}

	var problems []string
	if res := r.validator.Validate(doc); !res.Valid {
		problems = append(problems, res.Messages()...)
	}
	for _, rule := range def.Metadata.Preconditions {
		if _, err := precondition.Parse(rule); err != nil {
			problems = append(problems, fmt.Sprintf("metadata.preconditions: %v", err))
		}
	}
	return problems
}

func (r *Registry) applySLOPolicy(def *models.WorkflowDefinition, policy Policy) error {
	slo := &def.Metadata.SLOTargets
	var missing []string
	if slo.P95LatencyMs == nil {
		missing = append(missing, "p95_latency_ms")
	}
	if slo.SuccessRate == nil {
		missing = append(missing, "success_rate")
	}

	if len(missing) > 0 {
		if policy == PolicyStrict {
			problems := make([]string, len(missing))
			for i, m := range missing {
				problems[i] = fmt.Sprintf("metadata.slo_targets: %s is required", m)
			}
			return errors.NewSchemaValidationError(def.ID, problems)
		}

		if slo.P95LatencyMs == nil {
			v := DefaultP95LatencyMs
			slo.P95LatencyMs = &v
		}
		if slo.SuccessRate == nil {
			v := DefaultSuccessRate
			slo.SuccessRate = &v
		}
		r.logger.Warn("workflow slo_targets incomplete, defaults injected", map[string]interface{}{
			"workflowId": def.ID,
			"missing":    missing,
		})
	}

	if slo.MaxRetries == nil {
		v := DefaultMaxRetries
		slo.MaxRetries = &v
	}
	return nil
}

// Get returns a deep copy of the definition.
func (r *Registry) Get(id string) (models.WorkflowDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.workflows[id]
	if !ok {
		return models.WorkflowDefinition{}, false
	}
	return def.Clone(), true
}

// All returns deep copies of every definition, sorted by id.
func (r *Registry) All() []models.WorkflowDefinition {
	r.mu.RLock()
	out := make([]models.WorkflowDefinition, 0, len(r.workflows))
	for _, def := range r.workflows {
		out = append(out, def.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered workflows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workflows)
}

// Validate runs schema and policy checks without registering.
func (r *Registry) Validate(def models.WorkflowDefinition, policy Policy) error {
	def = def.Clone()
	if problems := r.validate(def); len(problems) > 0 {
		return errors.NewSchemaValidationError(def.ID, problems)
	}
	return r.applySLOPolicy(&def, policy)
}
