package classification

import (
	"context"
	"math"
	"sort"

	"workflow-engine/internal/models"
)

// CategoryModel is the token-weight vector for one category.
type CategoryModel struct {
	Category    string
	SubCategory string
	Priority    models.Priority
	Weights     map[string]float64
}

// DefaultEnsemble is a small hand-tuned bag-of-words model.
func DefaultEnsemble() []CategoryModel {
	return []CategoryModel{
		{Category: "optimize", SubCategory: "cancel_subscriptions", Priority: models.PriorityMedium, Weights: map[string]float64{
			"subscription": 1.2, "subscriptions": 1.2, "unused": 0.8, "cancel": 0.9, "monthly": 0.4, "recurring": 0.8, "streaming": 0.7,
		}},
		{Category: "save", SubCategory: "emergency_fund", Priority: models.PriorityHigh, Weights: map[string]float64{
			"save": 1.0, "savings": 1.0, "emergency": 1.2, "fund": 0.5, "cushion": 0.8, "buffer": 0.6,
		}},
		{Category: "debt", SubCategory: "payoff", Priority: models.PriorityHigh, Weights: map[string]float64{
			"debt": 1.2, "loan": 0.9, "credit": 0.6, "card": 0.5, "interest": 0.7, "apr": 0.8, "payoff": 1.0,
		}},
		{Category: "invest", SubCategory: "retirement", Priority: models.PriorityMedium, Weights: map[string]float64{
			"invest": 1.1, "retirement": 1.1, "401k": 1.2, "ira": 1.0, "portfolio": 0.8, "stocks": 0.7,
		}},
		{Category: "budget", SubCategory: "reduce_spending", Priority: models.PriorityMedium, Weights: map[string]float64{
			"budget": 1.1, "spending": 1.0, "expenses": 0.9, "dining": 0.6, "groceries": 0.6, "overspending": 1.1,
		}},
	}
}

// EnsembleScorer scores every category model and softmaxes the totals.
type EnsembleScorer struct {
	models []CategoryModel
}

func NewEnsembleScorer(categoryModels ...CategoryModel) *EnsembleScorer {
	if len(categoryModels) == 0 {
		categoryModels = DefaultEnsemble()
	}
	return &EnsembleScorer{models: categoryModels}
}

func (s *EnsembleScorer) Name() string { return "ensemble" }

// Score needs at least one weighted token. Confidence is the winning softmax share
// damped by how much evidence was seen, so a single weak token never scores high.
func (s *EnsembleScorer) Score(_ context.Context, text string, _ map[string]interface{}) (models.Classification, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return models.Classification{}, false
	}

	type scored struct {
		idx     int
		total   float64
		matched []string
	}
	results := make([]scored, len(s.models))
	anyHit := false
	for i, m := range s.models {
		results[i].idx = i
		for _, tok := range tokens {
			if w, ok := m.Weights[tok]; ok {
				results[i].total += w
				results[i].matched = appendUnique(results[i].matched, tok)
				anyHit = true
			}
		}
	}
	if !anyHit {
		return models.Classification{}, false
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].total > results[j].total })

	// Softmax shifted by the top total so long inputs cannot overflow Exp.
	top := results[0]
	var denom float64
	for _, r := range results {
		denom += math.Exp(r.total - top.total)
	}
	share := 1 / denom
	evidence := 1 - math.Exp(-top.total)
	m := s.models[top.idx]

	reasons := make([]string, 0, len(top.matched))
	for _, tok := range top.matched {
		reasons = append(reasons, "weighted token "+tok)
	}
	return models.Classification{
		Category:       m.Category,
		SubCategory:    m.SubCategory,
		IntentKeywords: top.matched,
		Confidence:     clamp01(share * evidence),
		Priority:       m.Priority,
		Strategy:       s.Name(),
		MatchReasons:   reasons,
	}, true
}
