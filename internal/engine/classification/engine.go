package classification

import (
	"context"
	"sort"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/common/metrics"
	"workflow-engine/internal/models"
)

// Config holds the combiner tunables.
type Config struct {
	// RuleAuthorityThreshold is the rule confidence at which the rule result is returned as-is.
	RuleAuthorityThreshold float64
	// WinnerBoost multiplies the winner's weight in the confidence average.
	WinnerBoost float64
}

func DefaultConfig() Config {
	return Config{RuleAuthorityThreshold: 0.8, WinnerBoost: 2.0}
}

// Engine runs its strategies in order and combines their outputs. It is safe for concurrent use.
type Engine struct {
	config     Config
	strategies []Strategy
	logger     logger.Logger
}

// NewEngine builds an engine. The first strategy named "rule" is treated as the authoritative one.
func NewEngine(config Config, log logger.Logger, strategies ...Strategy) *Engine {
	if config.WinnerBoost <= 0 {
		config.WinnerBoost = 1
	}
	if len(strategies) == 0 {
		strategies = []Strategy{NewRuleMatcher()}
	}
	return &Engine{
		config:     config,
		strategies: strategies,
		logger:     log.Named("classification"),
	}
}

type strategyResult struct {
	order int
	c     models.Classification
}

// Classify returns exactly one classification. The only error is a nil context map.
func (e *Engine) Classify(ctx context.Context, text string, fields map[string]interface{}) (models.Classification, error) {
	if fields == nil {
		return models.Classification{}, errors.NewInvalidInputError("context must be an object, got null")
	}

	var results []strategyResult
	for i, s := range e.strategies {
		if ctx.Err() != nil {
			break
		}
		c, ok := s.Score(ctx, text, fields)
		if !ok {
			continue
		}
		c.Confidence = clamp01(c.Confidence)
		if c.Strategy == "" {
			c.Strategy = s.Name()
		}
		results = append(results, strategyResult{order: i, c: c})
	}

	out := e.combine(results)
	metrics.ClassificationsTotal.WithLabelValues(out.Category, out.Strategy).Inc()
	metrics.ClassificationConfidence.Observe(out.Confidence)

	e.logger.Debug("classification completed", map[string]interface{}{
		"category":   out.Category,
		"confidence": out.Confidence,
		"strategy":   out.Strategy,
		"hits":       len(results),
	})
	return out, nil
}

func (e *Engine) combine(results []strategyResult) models.Classification {
	if len(results) == 0 {
		return models.Uncategorized()
	}

	for _, r := range results {
		if r.c.Strategy == "rule" && r.c.Confidence >= e.config.RuleAuthorityThreshold {
			return r.c
		}
	}

	ranked := make([]strategyResult, len(results))
	copy(ranked, results)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i].c, ranked[j].c
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if len(a.MatchReasons) != len(b.MatchReasons) {
			return len(a.MatchReasons) > len(b.MatchReasons)
		}
		return ranked[i].order < ranked[j].order
	})

	winner := ranked[0].c
	var weighted, weights float64
	keywords := append([]string{}, winner.IntentKeywords...)
	reasons := prefixReasons(winner)
	for i, r := range ranked {
		w := 1.0
		if i == 0 {
			w = e.config.WinnerBoost
		} else {
			keywords = appendUnique(keywords, r.c.IntentKeywords...)
			reasons = append(reasons, prefixReasons(r.c)...)
		}
		weighted += w * r.c.Confidence
		weights += w
	}

	return models.Classification{
		Category:       winner.Category,
		SubCategory:    winner.SubCategory,
		IntentKeywords: keywords,
		Confidence:     clamp01(weighted / weights),
		Priority:       winner.Priority,
		Strategy:       winner.Strategy,
		MatchReasons:   reasons,
	}
}

func prefixReasons(c models.Classification) []string {
	out := make([]string, len(c.MatchReasons))
	for i, r := range c.MatchReasons {
		out[i] = c.Strategy + ": " + r
	}
	return out
}
