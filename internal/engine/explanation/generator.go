package explanation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"workflow-engine/internal/common/errors"
	apphttp "workflow-engine/internal/common/http"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/models"
)

// Generator produces a rationale on a cache miss.
type Generator interface {
	Generate(ctx context.Context, req models.ExplanationRequest) (models.Rationale, error)
}

// GenAIConfig points at the text-generation API.
type GenAIConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

// GenAIGenerator calls POST {base}/api/ai/generate and expects a rationale-shaped answer.
type GenAIGenerator struct {
	config GenAIConfig
	client *apphttp.Client
	logger logger.Logger
}

func NewGenAIGenerator(config GenAIConfig, log logger.Logger) *GenAIGenerator {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &GenAIGenerator{
		config: config,
		// Deadlines come from the per-call context.
		client: apphttp.NewClient(0),
		logger: log.Named("genai"),
	}
}

type generateResponse struct {
	WhyRecommended    string   `json:"why_recommended"`
	KeyConsiderations []string `json:"key_considerations"`
	NuanceGuidance    string   `json:"nuance_guidance"`
	RiskAssessment    string   `json:"risk_assessment"`
	Confidence        float64  `json:"confidence"`
}

func (g *GenAIGenerator) Generate(ctx context.Context, req models.ExplanationRequest) (models.Rationale, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	body := map[string]interface{}{
		"prompt": buildPrompt(req),
		"context": map[string]interface{}{
			"category":          req.Classification.Category,
			"sub_category":      req.Classification.SubCategory,
			"workflow_id":       req.Match.WorkflowID,
			"rollback_strategy": string(req.Match.RollbackStrategy),
			"compliance_status": req.Match.ComplianceStatus,
		},
		"response_format": "rationale",
	}
	headers := map[string]string{}
	if g.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + g.config.APIKey
	}

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt <= g.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return models.Rationale{}, errors.NewGenerationTimeoutError()
			}
		}

		resp, lastErr = g.client.PostJSON(ctx, g.config.BaseURL+"/api/ai/generate", headers, body)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}
		if ctx.Err() != nil {
			return models.Rationale{}, errors.NewGenerationTimeoutError()
		}
	}
	if lastErr != nil {
		return models.Rationale{}, errors.NewGenerationFailedError(lastErr)
	}
	defer resp.Body.Close()

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.Rationale{}, errors.NewGenerationFailedError(fmt.Errorf("decode error: %w", err))
	}
	if strings.TrimSpace(out.WhyRecommended) == "" {
		return models.Rationale{}, errors.NewGenerationFailedError(fmt.Errorf("empty rationale"))
	}

	g.logger.Info("rationale generated", map[string]interface{}{
		"category":   req.Classification.Category,
		"workflowId": req.Match.WorkflowID,
	})
	if out.KeyConsiderations == nil {
		out.KeyConsiderations = []string{}
	}
	return models.Rationale{
		WhyRecommended:    out.WhyRecommended,
		KeyConsiderations: out.KeyConsiderations,
		NuanceGuidance:    out.NuanceGuidance,
		RiskAssessment:    out.RiskAssessment,
	}, nil
}

func buildPrompt(req models.ExplanationRequest) string {
	var parts []string
	parts = append(parts, "You are a careful financial assistant. Explain in plain language why this action fits the recommendation.")
	if req.RecommendationText != "" {
		parts = append(parts, fmt.Sprintf("\nRecommendation: %s", req.RecommendationText))
	}
	parts = append(parts, fmt.Sprintf("Category: %s / %s", req.Classification.Category, req.Classification.SubCategory))
	if req.Match.WorkflowID != "" {
		parts = append(parts, fmt.Sprintf("Proposed action: %s (%s)", req.Match.Name, req.Match.WorkflowID))
		parts = append(parts, fmt.Sprintf("Expected impact: %s", req.Match.EstimatedImpact))
		parts = append(parts, fmt.Sprintf("Rollback: %s", req.Match.RollbackStrategy))
	}
	parts = append(parts, "\nAnswer with why_recommended, key_considerations, nuance_guidance and risk_assessment.")
	return strings.Join(parts, "\n")
}
