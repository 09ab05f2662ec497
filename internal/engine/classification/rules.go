package classification

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"workflow-engine/internal/models"
)

// Rule maps keywords and patterns to a category.
type Rule struct {
	Category    string
	SubCategory string
	Priority    models.Priority
	Keywords    []string
	Patterns    []*regexp.Regexp
	// PatternConfidence is reported when any pattern matches.
	PatternConfidence float64
}

// DefaultRules is the built-in financial rule set.
func DefaultRules() []Rule {
	return []Rule{
		{
			Category:          "optimize",
			SubCategory:       "cancel_subscriptions",
			Priority:          models.PriorityMedium,
			Keywords:          []string{"cancel", "subscription", "subscriptions", "unused", "recurring", "streaming", "membership"},
			Patterns:          []*regexp.Regexp{regexp.MustCompile(`\b(cancel|drop|remove|stop)\b.*\b(subscriptions?|memberships?)\b`)},
			PatternConfidence: 0.9,
		},
		{
			Category:          "save",
			SubCategory:       "emergency_fund",
			Priority:          models.PriorityHigh,
			Keywords:          []string{"save", "savings", "emergency", "fund", "cushion", "rainy"},
			Patterns:          []*regexp.Regexp{regexp.MustCompile(`\bemergency\s+(fund|savings)\b`), regexp.MustCompile(`\brainy\s+day\b`)},
			PatternConfidence: 0.9,
		},
		{
			Category:          "debt",
			SubCategory:       "payoff",
			Priority:          models.PriorityHigh,
			Keywords:          []string{"debt", "loan", "loans", "payoff", "credit", "card", "interest", "balance", "apr"},
			Patterns:          []*regexp.Regexp{regexp.MustCompile(`\bpay\s*(off|down)\b.*\b(debt|loans?|cards?|balances?)\b`)},
			PatternConfidence: 0.9,
		},
		{
			Category:          "invest",
			SubCategory:       "retirement",
			Priority:          models.PriorityMedium,
			Keywords:          []string{"invest", "investing", "401k", "ira", "roth", "retirement", "portfolio", "index"},
			Patterns:          []*regexp.Regexp{regexp.MustCompile(`\b(401\(?k\)?|roth|ira)\b`)},
			PatternConfidence: 0.85,
		},
		{
			Category:          "budget",
			SubCategory:       "reduce_spending",
			Priority:          models.PriorityMedium,
			Keywords:          []string{"budget", "spending", "expenses", "track", "categorize", "groceries", "dining"},
			Patterns:          []*regexp.Regexp{regexp.MustCompile(`\b(reduce|cut|lower|trim)\b.*\b(spending|expenses|costs)\b`)},
			PatternConfidence: 0.85,
		},
		{
			Category:          "optimize",
			SubCategory:       "refinance",
			Priority:          models.PriorityMedium,
			Keywords:          []string{"refinance", "refinancing", "mortgage", "rate"},
			Patterns:          []*regexp.Regexp{regexp.MustCompile(`\brefinanc(e|ing)\b`)},
			PatternConfidence: 0.85,
		},
	}
}

// RuleMatcher is the keyword/pattern strategy. It holds no mutable state.
type RuleMatcher struct {
	rules []Rule
}

// NewRuleMatcher returns a matcher over rules, or DefaultRules when none are given.
func NewRuleMatcher(rules ...Rule) *RuleMatcher {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &RuleMatcher{rules: rules}
}

func (m *RuleMatcher) Name() string { return "rule" }

// Score evaluates every rule and keeps the strongest hit. Ties keep the higher
// priority, then the rule with more reasons, then the earlier rule.
func (m *RuleMatcher) Score(_ context.Context, text string, _ map[string]interface{}) (models.Classification, bool) {
	lower := strings.ToLower(text)
	tokens := tokenize(text)
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	var best models.Classification
	found := false
	for _, rule := range m.rules {
		c, ok := m.apply(rule, lower, tokenSet)
		if !ok {
			continue
		}
		if !found || better(c, best) {
			best = c
			found = true
		}
	}
	return best, found
}

func (m *RuleMatcher) apply(rule Rule, lower string, tokens map[string]bool) (models.Classification, bool) {
	var keywords, reasons []string
	for _, kw := range rule.Keywords {
		if tokens[kw] {
			keywords = append(keywords, kw)
			reasons = append(reasons, fmt.Sprintf("keyword %q", kw))
		}
	}

	patternHit := false
	for _, p := range rule.Patterns {
		if p.MatchString(lower) {
			patternHit = true
			reasons = append(reasons, fmt.Sprintf("pattern %q", p.String()))
		}
	}

	if !patternHit && len(keywords) == 0 {
		return models.Classification{}, false
	}

	var confidence float64
	if patternHit {
		confidence = rule.PatternConfidence
	} else {
		// Keyword-only hits stay below the default authority threshold.
		confidence = 0.45 + 0.1*float64(len(keywords)-1)
		if confidence > 0.75 {
			confidence = 0.75
		}
	}

	if keywords == nil {
		keywords = []string{}
	}
	return models.Classification{
		Category:       rule.Category,
		SubCategory:    rule.SubCategory,
		IntentKeywords: appendUnique(keywords, rule.SubCategory),
		Confidence:     clamp01(confidence),
		Priority:       rule.Priority,
		Strategy:       m.Name(),
		MatchReasons:   reasons,
	}, true
}

// better reports whether a outranks b by confidence, priority, then reason count.
func better(a, b models.Classification) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}
	return len(a.MatchReasons) > len(b.MatchReasons)
}
