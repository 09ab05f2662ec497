package classification

import (
	"context"
	"math"
	"strings"
	"testing"

	"workflow-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleMatcher_Score(t *testing.T) {
	matcher := NewRuleMatcher()

	tests := []struct {
		text        string
		category    string
		subCategory string
		confidence  float64
		hit         bool
	}{
		{"Cancel unused subscriptions", "optimize", "cancel_subscriptions", 0.9, true},
		{"Build an emergency fund this year", "save", "emergency_fund", 0.9, true},
		{"Pay down the credit card balance", "debt", "payoff", 0.9, true},
		{"Max out your 401(k) match", "invest", "retirement", 0.85, true},
		{"Consider refinancing", "optimize", "refinance", 0.85, true},
		{"recurring streaming", "optimize", "cancel_subscriptions", 0.55, true},
		{"nothing to see", "", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			c, ok := matcher.Score(context.Background(), tt.text, nil)
			assert.Equal(t, tt.hit, ok)
			if !tt.hit {
				return
			}
			assert.Equal(t, tt.category, c.Category)
			assert.Equal(t, tt.subCategory, c.SubCategory)
			assert.InDelta(t, tt.confidence, c.Confidence, 1e-9)
			assert.NotEmpty(t, c.MatchReasons)
		})
	}
}

func TestRuleMatcher_CustomRules(t *testing.T) {
	matcher := NewRuleMatcher(Rule{
		Category:    "protect",
		SubCategory: "insurance",
		Priority:    models.PriorityCritical,
		Keywords:    []string{"insurance", "coverage"},
	})

	c, ok := matcher.Score(context.Background(), "Review insurance coverage", nil)
	assert.True(t, ok)
	assert.Equal(t, "protect", c.Category)
	assert.InDelta(t, 0.55, c.Confidence, 1e-9)
	assert.Equal(t, []string{"insurance", "coverage"}, c.IntentKeywords)
}

func TestDecisionTreeScorer(t *testing.T) {
	scorer := NewDecisionTreeScorer(nil)

	c, ok := scorer.Score(context.Background(), "", map[string]interface{}{"debt_to_income": 0.1, "emergency_fund_months": 1})
	assert.True(t, ok)
	assert.Equal(t, "save", c.Category)
	assert.Len(t, c.MatchReasons, 2)

	c, ok = scorer.Score(context.Background(), "", map[string]interface{}{"debt_to_income": 0.1, "emergency_fund_months": 6, "subscription_count": 7})
	assert.True(t, ok)
	assert.Equal(t, "cancel_subscriptions", c.SubCategory)

	_, ok = scorer.Score(context.Background(), "", map[string]interface{}{"debt_to_income": 0.1, "emergency_fund_months": 6, "subscription_count": 1})
	assert.False(t, ok)

	_, ok = scorer.Score(context.Background(), "", map[string]interface{}{"debt_to_income": "high"})
	assert.False(t, ok)
}

func TestEnsembleScorer(t *testing.T) {
	scorer := NewEnsembleScorer()

	c, ok := scorer.Score(context.Background(), "too many streaming subscriptions", nil)
	assert.True(t, ok)
	assert.Equal(t, "optimize", c.Category)
	assert.Greater(t, c.Confidence, 0.0)
	assert.Less(t, c.Confidence, 1.0)

	_, ok = scorer.Score(context.Background(), "unrelated words only", nil)
	assert.False(t, ok)
}

func TestEnsembleScorer_LargeTotalsDoNotOverflow(t *testing.T) {
	scorer := NewEnsembleScorer()

	c, ok := scorer.Score(context.Background(), strings.Repeat("debt loan ", 600), nil)
	require.True(t, ok)
	assert.Equal(t, "debt", c.Category)
	assert.False(t, math.IsNaN(c.Confidence))
	assert.InDelta(t, 1.0, c.Confidence, 1e-9)
}
