// Package engine wires classification, selection, explanation and execution into the
// request-level operations served over HTTP.
package engine

import (
	"context"
	"time"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/observability"
	"workflow-engine/internal/engine/registry"
	"workflow-engine/internal/engine/telemetry"
	"workflow-engine/internal/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Classifier turns recommendation text into a classification.
type Classifier interface {
	Classify(ctx context.Context, text string, fields map[string]interface{}) (models.Classification, error)
}

// Matcher ranks workflows for a classification.
type Matcher interface {
	Select(ctx context.Context, c models.Classification, profile *models.UserProfile, fields map[string]interface{}) []models.WorkflowMatch
}

// Explainer produces a rationale. It never fails.
type Explainer interface {
	GetExplanation(ctx context.Context, req models.ExplanationRequest) models.Rationale
}

// Executor is the execution coordinator.
type Executor interface {
	Execute(ctx context.Context, req models.ExecutionRequest) (models.ExecutionRecord, error)
	Get(ctx context.Context, key string) (models.ExecutionRecord, error)
	ListByUser(ctx context.Context, userID string) ([]models.ExecutionRecord, error)
	Cancel(ctx context.Context, key string) (models.ExecutionRecord, error)
	Rollback(ctx context.Context, key string) (models.ExecutionRecord, error)
}

// ProfileSource resolves user profiles.
type ProfileSource interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// ClassifyRequest is the input to Classify.
type ClassifyRequest struct {
	Text    string                 `json:"text"`
	Context map[string]interface{} `json:"context"`
}

// SelectRequest classifies Text unless a classification is supplied. The profile is
// loaded by UserID when not given inline.
type SelectRequest struct {
	Text           string                 `json:"text,omitempty"`
	Classification *models.Classification `json:"classification,omitempty"`
	Context        map[string]interface{} `json:"context"`
	UserID         string                 `json:"user_id,omitempty"`
	Profile        *models.UserProfile    `json:"profile,omitempty"`
	Explain        bool                   `json:"explain,omitempty"`
}

// SelectResponse carries the ranked matches and, when asked, a rationale for the top one.
type SelectResponse struct {
	Classification models.Classification  `json:"classification"`
	Matches        []models.WorkflowMatch `json:"matches"`
	Explanation    *models.Rationale      `json:"explanation,omitempty"`
}

// Deps are the collaborators of a Service. Emitter and Observability may be nil.
type Deps struct {
	Classifier     Classifier
	Selector       Matcher
	Explainer      Explainer
	Executor       Executor
	Registry       *registry.Registry
	Profiles       ProfileSource
	Emitter        telemetry.Emitter
	Observability  *observability.Observability
	ExternalPolicy registry.Policy
}

// Service is the request-level facade over the engine components.
type Service struct {
	Deps
	logger logger.Logger
}

func NewService(deps Deps, log logger.Logger) *Service {
	if deps.Emitter == nil {
		deps.Emitter = telemetry.Nop{}
	}
	if deps.ExternalPolicy == "" {
		deps.ExternalPolicy = registry.PolicyStrict
	}
	return &Service{Deps: deps, logger: log.Named("service")}
}

// Classify never reports a classification failure; unmatched text is uncategorized.
func (s *Service) Classify(ctx context.Context, req ClassifyRequest) (c models.Classification, err error) {
	ctx, done := s.observe(ctx, "classify")
	defer func() { done(err) }()

	c, err = s.Classifier.Classify(ctx, req.Text, req.Context)
	if err != nil {
		return c, err
	}
	s.Emitter.Record(models.AuditEvent{
		Type:   models.EventClassified,
		Status: c.Category,
		Attributes: map[string]interface{}{
			"sub_category": c.SubCategory,
			"confidence":   c.Confidence,
			"strategy":     c.Strategy,
		},
	})
	return c, nil
}

func (s *Service) Select(ctx context.Context, req SelectRequest) (resp SelectResponse, err error) {
	ctx, done := s.observe(ctx, "select")
	defer func() { done(err) }()

	if req.Context == nil {
		return resp, errors.NewInvalidInputError("context must be an object, got null")
	}

	var c models.Classification
	if req.Classification != nil {
		c = *req.Classification
	} else {
		if c, err = s.Classifier.Classify(ctx, req.Text, req.Context); err != nil {
			return resp, err
		}
	}

	profile, err := s.resolveProfile(ctx, req)
	if err != nil {
		return resp, err
	}

	matches := s.Selector.Select(ctx, c, profile, req.Context)
	resp = SelectResponse{Classification: c, Matches: matches}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.WorkflowID
	}
	s.Emitter.Record(models.AuditEvent{
		Type:   models.EventSelected,
		UserID: profile.UserID,
		Status: c.Category,
		Attributes: map[string]interface{}{
			"matches": ids,
		},
	})

	if req.Explain && len(matches) > 0 {
		r := s.explain(ctx, models.ExplanationRequest{
			Classification:     c,
			Match:              matches[0],
			Profile:            *profile,
			RecommendationText: req.Text,
		})
		resp.Explanation = &r
	}
	return resp, nil
}

// resolveProfile prefers the inline profile. An unknown user gets an empty profile, so
// every precondition on profile attributes fails closed.
func (s *Service) resolveProfile(ctx context.Context, req SelectRequest) (*models.UserProfile, error) {
	if req.Profile != nil {
		p := *req.Profile
		if p.UserID == "" {
			p.UserID = req.UserID
		}
		return &p, nil
	}
	if req.UserID == "" || s.Profiles == nil {
		return &models.UserProfile{UserID: req.UserID, Attributes: map[string]interface{}{}}, nil
	}

	p, err := s.Profiles.GetProfile(ctx, req.UserID)
	if errors.HasCode(err, errors.ErrCodeProfileNotFound) {
		s.logger.Warn("profile not found, gating on an empty profile", map[string]interface{}{"userId": req.UserID})
		return &models.UserProfile{UserID: req.UserID, Attributes: map[string]interface{}{}}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Explain(ctx context.Context, req models.ExplanationRequest) models.Rationale {
	ctx, done := s.observe(ctx, "explain")
	defer done(nil)
	return s.explain(ctx, req)
}

func (s *Service) explain(ctx context.Context, req models.ExplanationRequest) models.Rationale {
	r := s.Explainer.GetExplanation(ctx, req)
	s.Emitter.Record(models.AuditEvent{
		Type:       models.EventExplanationServed,
		UserID:     req.Profile.UserID,
		WorkflowID: req.Match.WorkflowID,
		Status:     r.Source,
	})
	return r
}

func (s *Service) Execute(ctx context.Context, req models.ExecutionRequest) (rec models.ExecutionRecord, err error) {
	ctx, done := s.observe(ctx, "execute", attribute.String("workflow.id", req.WorkflowID))
	defer func() { done(err) }()
	return s.Executor.Execute(ctx, req)
}

func (s *Service) Execution(ctx context.Context, key string) (models.ExecutionRecord, error) {
	return s.Executor.Get(ctx, key)
}

func (s *Service) UserExecutions(ctx context.Context, userID string) ([]models.ExecutionRecord, error) {
	return s.Executor.ListByUser(ctx, userID)
}

func (s *Service) Cancel(ctx context.Context, key string) (rec models.ExecutionRecord, err error) {
	ctx, done := s.observe(ctx, "cancel")
	defer func() { done(err) }()
	return s.Executor.Cancel(ctx, key)
}

func (s *Service) Rollback(ctx context.Context, key string) (rec models.ExecutionRecord, err error) {
	ctx, done := s.observe(ctx, "rollback")
	defer func() { done(err) }()
	return s.Executor.Rollback(ctx, key)
}

// RegisterWorkflow validates externally submitted definitions under the external policy.
func (s *Service) RegisterWorkflow(ctx context.Context, def models.WorkflowDefinition) (err error) {
	_, done := s.observe(ctx, "register")
	defer func() { done(err) }()

	if err = s.Registry.RegisterWithPolicy(def, s.ExternalPolicy); err != nil {
		return err
	}
	s.Emitter.Record(models.AuditEvent{Type: models.EventWorkflowRegistered, WorkflowID: def.ID})
	return nil
}

func (s *Service) Workflows() []models.WorkflowDefinition {
	return s.Registry.All()
}

func (s *Service) Workflow(id string) (models.WorkflowDefinition, error) {
	def, ok := s.Registry.Get(id)
	if !ok {
		return models.WorkflowDefinition{}, errors.NewWorkflowNotFoundError(id)
	}
	return def, nil
}

// observe opens a span and returns a func that ends it and records the outcome.
func (s *Service) observe(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := s.Observability.StartSpan(ctx, "engine."+operation, attrs...)
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.Observability.RecordOperation(ctx, operation, status, time.Since(start))
		span.End()
	}
}
