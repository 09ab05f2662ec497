// Package selector ranks registered workflows for a classification under policy gates.
package selector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/engine/consent"
	"workflow-engine/internal/engine/precondition"
	"workflow-engine/internal/models"
)

// Catalog is the read side of the registry.
type Catalog interface {
	All() []models.WorkflowDefinition
}

// Config holds scoring weights and cascade thresholds.
type Config struct {
	TagWeight        float64
	ConfidenceWeight float64
	// DiscardThreshold drops scored matches and also triggers the decay floor.
	DiscardThreshold float64
	CascadeThreshold float64
	DecayFloor       float64
	// GenericDefaults lists workflow ids treated as generic defaults in addition to flagged ones.
	GenericDefaults []string
	// GenericScoreRatio scales classification confidence into a generic default's score.
	GenericScoreRatio float64
}

func DefaultConfig() Config {
	return Config{
		TagWeight:         0.6,
		ConfidenceWeight:  0.4,
		DiscardThreshold:  0.3,
		CascadeThreshold:  0.5,
		DecayFloor:        0.2,
		GenericScoreRatio: 0.2,
	}
}

// Selector is stateless apart from its injected collaborators and safe for concurrent use.
type Selector struct {
	config    Config
	catalog   Catalog
	evaluator *precondition.Evaluator
	consents  consent.Store
	logger    logger.Logger
	now       func() time.Time
}

func New(config Config, catalog Catalog, evaluator *precondition.Evaluator, consents consent.Store, log logger.Logger) *Selector {
	return &Selector{
		config:    config,
		catalog:   catalog,
		evaluator: evaluator,
		consents:  consents,
		logger:    log.Named("selector"),
		now:       time.Now,
	}
}

// gate is the precondition and consent outcome for one workflow.
type gate struct {
	unmet   []string
	missing []string
}

func (g gate) passed() bool { return len(g.unmet) == 0 && len(g.missing) == 0 }

// Select returns matches sorted by confidence descending, ties by workflow id ascending.
// It never fails: gating problems are reported as data and an empty result means
// there is no automatable action.
func (s *Selector) Select(ctx context.Context, c models.Classification, profile *models.UserProfile, fields map[string]interface{}) []models.WorkflowMatch {
	defs := s.catalog.All()
	records := s.loadConsents(ctx, profile)
	now := s.now()

	gates := make(map[string]gate, len(defs))
	gateFor := func(def models.WorkflowDefinition) gate {
		if g, ok := gates[def.ID]; ok {
			return g
		}
		g := gate{
			unmet:   s.evaluator.Unmet(def.Metadata.Preconditions, profile, fields),
			missing: consent.Missing(def.AllConsentRequired(), records, now),
		}
		gates[def.ID] = g
		return g
	}

	tier := models.TierPrimary
	matches := s.primary(defs, c, profile, gateFor)

	if len(matches) == 0 || best(matches) < s.config.CascadeThreshold {
		tier = models.TierTagOnly
		matches = merge(matches, s.tagOnly(defs, c, profile, gateFor))

		if len(matches) == 0 {
			tier = models.TierGenericDefault
			matches = s.genericDefaults(defs, c, profile, gateFor)
		}
	}

	if len(matches) > 0 && best(matches) < s.config.DiscardThreshold {
		for i := range matches {
			if matches[i].Tier == models.TierGenericDefault && matches[i].ConfidenceScore < s.config.DecayFloor {
				matches[i].ConfidenceScore = s.config.DecayFloor
				matches[i].MatchReasons = append(matches[i].MatchReasons,
					fmt.Sprintf("confidence raised to floor %.2f", s.config.DecayFloor))
			}
		}
	}

	sortMatches(matches)

	metrics.CascadeTierTotal.WithLabelValues(string(tier)).Inc()
	metrics.SelectionMatches.Observe(float64(len(matches)))
	s.logger.Debug("selection completed", map[string]interface{}{
		"category": c.Category,
		"tier":     string(tier),
		"matches":  len(matches),
	})
	return matches
}

func (s *Selector) primary(defs []models.WorkflowDefinition, c models.Classification, profile *models.UserProfile, gateFor func(models.WorkflowDefinition) gate) []models.WorkflowMatch {
	keywords := toSet(c.IntentKeywords)
	var out []models.WorkflowMatch
	for _, def := range defs {
		overlap := intersect(def.Metadata.IntentTags, keywords)
		categoryMatch := c.Category != "" && c.Category != models.CategoryUncategorized && def.Category() == c.Category
		if len(overlap) == 0 && !categoryMatch {
			continue
		}
		if !gateFor(def).passed() {
			continue
		}

		score := s.score(len(overlap), len(def.Metadata.IntentTags), c.Confidence)
		if score < s.config.DiscardThreshold {
			continue
		}

		reasons := make([]string, 0, 2)
		if len(overlap) > 0 {
			reasons = append(reasons, "intent tags matched: "+strings.Join(overlap, ", "))
		}
		if categoryMatch {
			reasons = append(reasons, "category "+c.Category+" matches")
		}
		out = append(out, s.buildMatch(def, profile, gateFor(def), score, reasons, models.TierPrimary))
	}
	return out
}

// tagOnly ignores category and compares tags token by token, so "cancel_subscriptions"
// and "subscriptions" overlap.
func (s *Selector) tagOnly(defs []models.WorkflowDefinition, c models.Classification, profile *models.UserProfile, gateFor func(models.WorkflowDefinition) gate) []models.WorkflowMatch {
	keywordTokens := toSet(splitTokens(c.IntentKeywords))
	if len(keywordTokens) == 0 {
		return nil
	}

	var out []models.WorkflowMatch
	for _, def := range defs {
		var matched []string
		for _, tag := range def.Metadata.IntentTags {
			for _, tok := range splitTokens([]string{tag}) {
				if keywordTokens[tok] {
					matched = append(matched, tag)
					break
				}
			}
		}
		if len(matched) == 0 || !gateFor(def).passed() {
			continue
		}

		score := s.score(len(matched), len(def.Metadata.IntentTags), c.Confidence)
		if score < s.config.DiscardThreshold {
			continue
		}
		reasons := []string{"intent tag tokens matched: " + strings.Join(matched, ", ")}
		out = append(out, s.buildMatch(def, profile, gateFor(def), score, reasons, models.TierTagOnly))
	}
	return out
}

// genericDefaults are always eligible; their gate outcome is reported, not enforced.
func (s *Selector) genericDefaults(defs []models.WorkflowDefinition, c models.Classification, profile *models.UserProfile, gateFor func(models.WorkflowDefinition) gate) []models.WorkflowMatch {
	listed := toSet(s.config.GenericDefaults)
	var out []models.WorkflowMatch
	for _, def := range defs {
		if !def.Metadata.GenericDefault && !listed[def.ID] {
			continue
		}
		score := clamp01(c.Confidence * s.config.GenericScoreRatio)
		reasons := []string{"generic default fallback"}
		out = append(out, s.buildMatch(def, profile, gateFor(def), score, reasons, models.TierGenericDefault))
	}
	return out
}

func (s *Selector) score(overlap, tags int, confidence float64) float64 {
	ratio := 0.0
	if tags > 0 {
		ratio = float64(overlap) / float64(tags)
	}
	return clamp01(s.config.TagWeight*ratio + s.config.ConfidenceWeight*confidence)
}

func (s *Selector) buildMatch(def models.WorkflowDefinition, profile *models.UserProfile, g gate, score float64, reasons []string, tier models.MatchTier) models.WorkflowMatch {
	prerequisites := append([]string{}, def.Metadata.Preconditions...)
	consents := def.AllConsentRequired()
	for _, c := range consents {
		prerequisites = append(prerequisites, "consent:"+c)
	}
	if consents == nil {
		consents = []string{}
	}

	return models.WorkflowMatch{
		WorkflowID:       def.ID,
		Name:             def.Name,
		ConfidenceScore:  score,
		MatchReasons:     reasons,
		EstimatedImpact:  estimatedImpact(def),
		Prerequisites:    prerequisites,
		PrivacyScope:     append([]string{}, def.Metadata.PrivacyScope...),
		ConsentRequired:  consents,
		PreconditionsMet: g.passed(),
		RollbackStrategy: def.Metadata.RollbackStrategy,
		SLOTargets:       def.Clone().Metadata.SLOTargets,
		ComplianceStatus: complianceStatus(def, profile),
		Tier:             tier,
	}
}

func (s *Selector) loadConsents(ctx context.Context, profile *models.UserProfile) []models.ConsentRecord {
	if profile == nil {
		return nil
	}
	if profile.Consents != nil || s.consents == nil {
		return profile.Consents
	}
	records, err := s.consents.GetConsents(ctx, profile.UserID)
	if err != nil {
		// No grants is the fail-closed outcome.
		s.logger.Warn("consent lookup failed", map[string]interface{}{"userId": profile.UserID, "error": err.Error()})
		return nil
	}
	return records
}

func estimatedImpact(def models.WorkflowDefinition) string {
	secs := float64(def.EstimatedDurationMs()) / 1000
	impact := fmt.Sprintf("%d steps, about %.1fs", len(def.Steps), secs)
	if len(def.Metadata.SideEffects) > 0 {
		impact += "; " + strings.Join(def.Metadata.SideEffects, "; ")
	}
	return impact
}

func complianceStatus(def models.WorkflowDefinition, profile *models.UserProfile) string {
	if len(def.Metadata.ComplianceRequirements) == 0 {
		return models.ComplianceClear
	}
	var flags map[string]bool
	if profile != nil {
		flags = toSet(profile.ComplianceFlags)
	}
	for _, req := range def.Metadata.ComplianceRequirements {
		if !flags[req] {
			return models.ComplianceReviewRequired
		}
	}
	return models.ComplianceClear
}

// merge keeps the higher-scoring entry per workflow id.
func merge(a, b []models.WorkflowMatch) []models.WorkflowMatch {
	byID := make(map[string]int, len(a)+len(b))
	out := make([]models.WorkflowMatch, 0, len(a)+len(b))
	for _, m := range append(append([]models.WorkflowMatch{}, a...), b...) {
		if i, ok := byID[m.WorkflowID]; ok {
			if m.ConfidenceScore > out[i].ConfidenceScore {
				out[i] = m
			}
			continue
		}
		byID[m.WorkflowID] = len(out)
		out = append(out, m)
	}
	return out
}

func sortMatches(m []models.WorkflowMatch) {
	sort.SliceStable(m, func(i, j int) bool {
		if m[i].ConfidenceScore != m[j].ConfidenceScore {
			return m[i].ConfidenceScore > m[j].ConfidenceScore
		}
		return m[i].WorkflowID < m[j].WorkflowID
	})
}

func best(m []models.WorkflowMatch) float64 {
	top := 0.0
	for _, x := range m {
		if x.ConfidenceScore > top {
			top = x.ConfidenceScore
		}
	}
	return top
}

func intersect(tags []string, keywords map[string]bool) []string {
	var out []string
	for _, t := range tags {
		if keywords[strings.ToLower(t)] {
			out = append(out, t)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = true
	}
	return set
}

func splitTokens(items []string) []string {
	var out []string
	for _, it := range items {
		out = append(out, strings.FieldsFunc(strings.ToLower(it), func(r rune) bool { return r == '_' || r == '-' || r == ' ' })...)
	}
	return out
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
