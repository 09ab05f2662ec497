// Package explanation serves recommendation rationales through a template cache, a
// similarity index and an optional generation port.
package explanation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/models"
)

// Rationale sources.
const (
	SourceTemplate   = "template"
	SourceSimilarity = "similarity"
	SourceGenerated  = "generated"
	SourceFallback   = "fallback"
)

// Options configure the cache layers.
type Options struct {
	TTL                 time.Duration
	MaxEntries          int
	SimilarityThreshold float64
	Dimensions          int
	Templates           map[string]models.Rationale
}

func DefaultOptions() Options {
	return Options{
		TTL:                 5 * time.Minute,
		MaxEntries:          1024,
		SimilarityThreshold: 0.85,
		Dimensions:          256,
	}
}

// Cache composes the exact store and the similarity index behind GetExplanation.
type Cache struct {
	exact     *exactStore
	index     *similarityIndex
	generator Generator
	templates map[string]models.Rationale
	logger    logger.Logger
	now       func() time.Time
}

// New builds a cache. generator may be nil, in which case misses fall back to templates.
func New(opts Options, generator Generator, log logger.Logger) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultOptions().TTL
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultOptions().MaxEntries
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultOptions().SimilarityThreshold
	}
	if opts.Templates == nil {
		opts.Templates = DefaultTemplates()
	}

	index, err := newSimilarityIndex(NewHashingEmbedder(opts.Dimensions), opts.SimilarityThreshold)
	if err != nil {
		return nil, fmt.Errorf("failed to create similarity index: %w", err)
	}

	c := &Cache{
		index:     index,
		generator: generator,
		templates: opts.Templates,
		logger:    log.Named("explanation"),
		now:       time.Now,
	}
	c.exact = newExactStore(opts.MaxEntries, opts.TTL, func() time.Time { return c.now() }, c.removeFromIndex)
	return c, nil
}

func (c *Cache) removeFromIndex(key string) {
	if !strings.HasPrefix(key, "text:") {
		return
	}
	if err := c.index.remove(context.Background(), key); err != nil {
		c.logger.Warn("failed to drop evicted text from similarity index", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

// categoryKey is the exact-store key of a (category, sub_category) pair.
func categoryKey(c models.Classification) string {
	return "category:" + c.Category + "/" + c.SubCategory
}

// GetExplanation never fails: every miss ends at a template.
func (c *Cache) GetExplanation(ctx context.Context, req models.ExplanationRequest) models.Rationale {
	key := categoryKey(req.Classification)
	text := recommendationText(req)

	if r, ok := c.exact.get(key); ok {
		metrics.ExplanationCacheTotal.WithLabelValues(SourceTemplate, "hit").Inc()
		return c.personalize(r, SourceTemplate, req)
	}
	metrics.ExplanationCacheTotal.WithLabelValues(SourceTemplate, "miss").Inc()

	if id, similarity, ok := c.index.nearest(ctx, text); ok {
		if r, found := c.exact.get(id); found {
			metrics.ExplanationCacheTotal.WithLabelValues(SourceSimilarity, "hit").Inc()
			c.logger.Debug("similar recommendation reused", map[string]interface{}{"similarity": similarity})
			c.exact.put(key, r)
			return c.personalize(r, SourceSimilarity, req)
		}
	}
	metrics.ExplanationCacheTotal.WithLabelValues(SourceSimilarity, "miss").Inc()

	if c.generator != nil {
		r, err := c.generator.Generate(ctx, req)
		if err == nil {
			metrics.ExplanationCacheTotal.WithLabelValues(SourceGenerated, "hit").Inc()
			c.store(ctx, key, text, r)
			return c.personalize(r, SourceGenerated, req)
		}
		metrics.ExplanationCacheTotal.WithLabelValues(SourceGenerated, "miss").Inc()
		c.logger.Warn("rationale generation failed, serving template", map[string]interface{}{
			"category": req.Classification.Category,
			"error":    err.Error(),
		})
	}

	// Fallbacks are not cached so the next call can try generation again.
	return c.personalize(nearestTemplate(c.templates, req.Classification.Category), SourceFallback, req)
}

// Put seeds the cache for a classification, for example from a curated catalog.
func (c *Cache) Put(ctx context.Context, classification models.Classification, text string, r models.Rationale) {
	c.store(ctx, categoryKey(classification), text, r)
}

func (c *Cache) store(ctx context.Context, key, text string, r models.Rationale) {
	c.exact.put(key, r)
	if strings.TrimSpace(text) == "" {
		return
	}
	id, err := c.index.add(ctx, text)
	if err != nil {
		c.logger.Debug("text not indexed", map[string]interface{}{"error": err.Error()})
		return
	}
	c.exact.put(id, r)
}

// Len is the number of live exact-store entries.
func (c *Cache) Len() int {
	return c.exact.len()
}

// personalize fills the per-call fields. Cached text is shared, scores and gating notes are not.
func (c *Cache) personalize(r models.Rationale, source string, req models.ExplanationRequest) models.Rationale {
	r = cloneRationale(r)
	r.Source = source

	r.ConfidenceScore = req.Classification.Confidence
	if req.Match.WorkflowID != "" {
		r.ConfidenceScore = req.Match.ConfidenceScore
	}
	if r.ConfidenceScore < 0 {
		r.ConfidenceScore = 0
	}
	if r.ConfidenceScore > 1 {
		r.ConfidenceScore = 1
	}

	if req.Match.WorkflowID != "" && !req.Match.PreconditionsMet {
		r.KeyConsiderations = append(r.KeyConsiderations, "Some prerequisites are not met yet: "+strings.Join(req.Match.Prerequisites, ", "))
	}
	if req.Match.ComplianceStatus == models.ComplianceReviewRequired {
		r.KeyConsiderations = append(r.KeyConsiderations, "Compliance disclosures must be reviewed before this runs")
	}
	if r.RiskAssessment == "" {
		r.RiskAssessment = nearestTemplate(c.templates, req.Classification.Category).RiskAssessment
	}
	if r.KeyConsiderations == nil {
		r.KeyConsiderations = []string{}
	}
	return r
}

func recommendationText(req models.ExplanationRequest) string {
	if strings.TrimSpace(req.RecommendationText) != "" {
		return req.RecommendationText
	}
	parts := append([]string{req.Classification.Category, req.Classification.SubCategory}, req.Classification.IntentKeywords...)
	if req.Match.Name != "" {
		parts = append(parts, req.Match.Name)
	}
	return strings.Join(parts, " ")
}
