package precondition

import (
	"testing"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestEvaluate_Operators(t *testing.T) {
	e := NewEvaluator(logger.NewTestLogger(t))
	ctx := map[string]interface{}{
		"linked_accounts":    2,
		"subscription_count": "4",
		"credit_score":       "good",
		"balance":            1250.5,
		"verified":           true,
		"account":            map[string]interface{}{"type": "checking", "age_months": 18},
	}

	tests := []struct {
		rule string
		want bool
	}{
		{"linked_accounts:>=:1", true},
		{"linked_accounts:>=:3", false},
		{"subscription_count:<=:4", true},
		{"balance:>=:1250.5", true},
		{"credit_score:==:good", true},
		{"credit_score:!=:good", false},
		{"credit_score:in:fair,good,excellent", true},
		{"credit_score:in:poor, fair", false},
		{"linked_accounts:in:1, 2, 3", true},
		{"linked_accounts:==:2.0", true},
		{"verified:==:true", true},
		{"account.type:==:checking", true},
		{"account.age_months:>=:12", true},
		{"account.missing:==:x", false},
	}

	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			assert.Equal(t, tt.want, e.Evaluate([]string{tt.rule}, nil, ctx))
		})
	}
}

func TestEvaluate_FailsClosed(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewEvaluator(logger.NewZapAdapter(zap.New(core)))
	ctx := map[string]interface{}{"credit_score": "good", "linked_accounts": 2}

	rules := []string{
		"credit_score:>=:700",
		"linked_accounts:>=:many",
		"linked_accounts:>:1",
		"linked_accounts",
		":==:1",
		"unknown_field:==:1",
		"unknown_field:!=:1",
	}
	for _, rule := range rules {
		assert.False(t, e.Evaluate([]string{rule}, nil, ctx), rule)
	}

	// unknown fields resolve to nil silently; the other five are logged
	assert.Equal(t, 5, logs.Len())
}

func TestEvaluate_ANDSemanticsAndEmpty(t *testing.T) {
	e := NewEvaluator(logger.NewNoOpLogger())
	ctx := map[string]interface{}{"linked_accounts": 2, "subscription_count": 0}

	assert.True(t, e.Evaluate(nil, nil, ctx))
	assert.True(t, e.Evaluate([]string{}, nil, nil))
	assert.False(t, e.Evaluate([]string{"linked_accounts:>=:1", "subscription_count:>=:2"}, nil, ctx))
	assert.Equal(t, []string{"subscription_count:>=:2"},
		e.Unmet([]string{"linked_accounts:>=:1", "subscription_count:>=:2"}, nil, ctx))
}

func TestEvaluate_ContextShadowsProfile(t *testing.T) {
	e := NewEvaluator(logger.NewNoOpLogger())
	profile := &models.UserProfile{
		UserID:     "u-1",
		Attributes: map[string]interface{}{"linked_accounts": 0, "country": "US"},
	}

	assert.False(t, e.Evaluate([]string{"linked_accounts:>=:1"}, profile, nil))
	assert.True(t, e.Evaluate([]string{"linked_accounts:>=:1"}, profile, map[string]interface{}{"linked_accounts": 3}))
	assert.True(t, e.Evaluate([]string{"country:in:US,CA"}, profile, map[string]interface{}{}))
}

func TestParse(t *testing.T) {
	r, err := Parse("note:==:a:b")
	require.NoError(t, err)
	assert.Equal(t, Rule{Field: "note", Operator: "==", Value: "a:b"}, r)

	_, err = Parse("x:~=:1")
	assert.Error(t, err)
}
