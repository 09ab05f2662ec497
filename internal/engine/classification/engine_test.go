package classification

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStrategy struct {
	name string
	c    models.Classification
	hit  bool
}

func (s stubStrategy) Name() string { return s.name }

func (s stubStrategy) Score(context.Context, string, map[string]interface{}) (models.Classification, bool) {
	return s.c, s.hit
}

func newFullEngine(t *testing.T) *Engine {
	return NewEngine(DefaultConfig(), logger.NewTestLogger(t),
		NewRuleMatcher(), NewDecisionTreeScorer(nil), NewEnsembleScorer())
}

func TestClassify_CancelSubscriptionsScenario(t *testing.T) {
	engine := newFullEngine(t)

	c, err := engine.Classify(context.Background(), "Cancel unused subscriptions", map[string]interface{}{
		"linked_accounts":    2,
		"credit_score":       "good",
		"subscription_count": 4,
	})
	require.NoError(t, err)

	assert.Equal(t, "optimize", c.Category)
	assert.Equal(t, "cancel_subscriptions", c.SubCategory)
	assert.Equal(t, "rule", c.Strategy)
	assert.Equal(t, 0.9, c.Confidence)
	assert.Contains(t, c.IntentKeywords, "cancel")
	assert.Contains(t, c.IntentKeywords, "subscriptions")
}

func TestClassify_NilContextIsMalformed(t *testing.T) {
	engine := newFullEngine(t)

	_, err := engine.Classify(context.Background(), "Cancel unused subscriptions", nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}

func TestClassify_NoHitIsUncategorized(t *testing.T) {
	engine := newFullEngine(t)

	c, err := engine.Classify(context.Background(), "hello there", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, models.CategoryUncategorized, c.Category)
	assert.Equal(t, 0.0, c.Confidence)
	assert.NotNil(t, c.IntentKeywords)
}

func TestClassify_WeakRuleIsAveragedWithEnsemble(t *testing.T) {
	engine := newFullEngine(t)

	c, err := engine.Classify(context.Background(), "look at my budget", map[string]interface{}{})
	require.NoError(t, err)

	assert.Equal(t, "budget", c.Category)
	assert.Equal(t, "rule", c.Strategy)
	assert.Less(t, c.Confidence, 0.45)
	assert.Greater(t, c.Confidence, 0.3)

	var sawEnsemble bool
	for _, r := range c.MatchReasons {
		if len(r) > 9 && r[:9] == "ensemble:" {
			sawEnsemble = true
		}
	}
	assert.True(t, sawEnsemble)
}

func TestClassify_DecisionTreeFromContextOnly(t *testing.T) {
	engine := newFullEngine(t)

	c, err := engine.Classify(context.Background(), "", map[string]interface{}{"debt_to_income": "0.55"})
	require.NoError(t, err)
	assert.Equal(t, "debt", c.Category)
	assert.Equal(t, "decision_tree", c.Strategy)
	assert.InDelta(t, 0.7, c.Confidence, 1e-9)
}

func TestCombine_TieBreaking(t *testing.T) {
	tests := []struct {
		name       string
		strategies []Strategy
		want       string
	}{
		{
			name: "higher priority wins equal confidence",
			strategies: []Strategy{
				stubStrategy{name: "a", hit: true, c: models.Classification{Category: "budget", Confidence: 0.6, Priority: models.PriorityMedium}},
				stubStrategy{name: "b", hit: true, c: models.Classification{Category: "debt", Confidence: 0.6, Priority: models.PriorityCritical}},
			},
			want: "debt",
		},
		{
			name: "more reasons wins equal priority",
			strategies: []Strategy{
				stubStrategy{name: "a", hit: true, c: models.Classification{Category: "budget", Confidence: 0.6, Priority: models.PriorityHigh, MatchReasons: []string{"x"}}},
				stubStrategy{name: "b", hit: true, c: models.Classification{Category: "save", Confidence: 0.6, Priority: models.PriorityHigh, MatchReasons: []string{"x", "y"}}},
			},
			want: "save",
		},
		{
			name: "strategy order breaks full ties",
			strategies: []Strategy{
				stubStrategy{name: "a", hit: true, c: models.Classification{Category: "invest", Confidence: 0.6, Priority: models.PriorityHigh}},
				stubStrategy{name: "b", hit: true, c: models.Classification{Category: "save", Confidence: 0.6, Priority: models.PriorityHigh}},
			},
			want: "invest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(DefaultConfig(), logger.NewNoOpLogger(), tt.strategies...)
			c, err := engine.Classify(context.Background(), "x", map[string]interface{}{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Category)
			assert.InDelta(t, 0.6, c.Confidence, 1e-9)
		})
	}
}

func TestClassify_ConfidenceAlwaysClamped(t *testing.T) {
	engine := NewEngine(DefaultConfig(), logger.NewNoOpLogger(),
		stubStrategy{name: "wild", hit: true, c: models.Classification{Category: "save", Confidence: 1.7}},
		stubStrategy{name: "negative", hit: true, c: models.Classification{Category: "debt", Confidence: -2}},
	)

	c, err := engine.Classify(context.Background(), "x", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "save", c.Category)
	assert.GreaterOrEqual(t, c.Confidence, 0.0)
	assert.LessOrEqual(t, c.Confidence, 1.0)
	assert.InDelta(t, 2.0/3.0, c.Confidence, 1e-9)
}

func TestClassify_ConfidenceRangeAcrossInputs(t *testing.T) {
	engine := newFullEngine(t)
	inputs := []string{
		"", "Cancel unused subscriptions", "pay off my credit card debt", "open a Roth IRA",
		"build an emergency fund", "refinance mortgage", "cut dining spending", "???", "subscriptions subscriptions subscriptions",
	}
	contexts := []map[string]interface{}{
		{}, {"debt_to_income": 0.1, "emergency_fund_months": 1}, {"debt_to_income": "abc"},
		{"debt_to_income": 0.2, "emergency_fund_months": 6, "subscription_count": 9},
	}

	for _, in := range inputs {
		for _, ctxFields := range contexts {
			c, err := engine.Classify(context.Background(), in, ctxFields)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, c.Confidence, 0.0, in)
			assert.LessOrEqual(t, c.Confidence, 1.0, in)
			assert.NotEmpty(t, c.Category)
		}
	}
}

func TestClassify_LongRepeatedInputStaysFinite(t *testing.T) {
	engine := newFullEngine(t)

	c, err := engine.Classify(context.Background(), strings.Repeat("debt ", 700), map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "debt", c.Category)
	assert.False(t, math.IsNaN(c.Confidence))
	assert.GreaterOrEqual(t, c.Confidence, 0.0)
	assert.LessOrEqual(t, c.Confidence, 1.0)

	_, err = json.Marshal(c)
	assert.NoError(t, err)
}

func TestClassify_NaNStrategyConfidenceIsZeroed(t *testing.T) {
	engine := NewEngine(DefaultConfig(), logger.NewNoOpLogger(),
		stubStrategy{name: "broken", hit: true, c: models.Classification{Category: "save", Confidence: math.NaN()}},
	)

	c, err := engine.Classify(context.Background(), "x", map[string]interface{}{})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(c.Confidence))
	assert.Equal(t, 0.0, c.Confidence)
}
