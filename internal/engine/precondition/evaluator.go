// Package precondition evaluates field:operator:value rules against profile and context data.
package precondition

import (
	"fmt"
	"strconv"
	"strings"

	"workflow-engine/internal/common/logger"
	"workflow-engine/internal/models"
)

type operatorFunc func(actual interface{}, operand string) (bool, error)

// operators is the dispatch table keyed by symbol.
var operators = map[string]operatorFunc{
	">=": numeric(func(a, b float64) bool { return a >= b }),
	"<=": numeric(func(a, b float64) bool { return a <= b }),
	"==": equals,
	"!=": func(actual interface{}, operand string) (bool, error) {
		eq, err := equals(actual, operand)
		return !eq, err
	},
	"in": membership,
}

// Rule is a parsed precondition.
type Rule struct {
	Field    string
	Operator string
	Value    string
}

// Parse splits a rule string into its three tokens. The value may itself contain colons.
func Parse(raw string) (Rule, error) {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return Rule{}, fmt.Errorf("rule %q: expected field:operator:value", raw)
	}
	r := Rule{
		Field:    strings.TrimSpace(parts[0]),
		Operator: strings.TrimSpace(parts[1]),
		Value:    strings.TrimSpace(parts[2]),
	}
	if r.Field == "" {
		return Rule{}, fmt.Errorf("rule %q: empty field", raw)
	}
	if _, ok := operators[r.Operator]; !ok {
		return Rule{}, fmt.Errorf("rule %q: unsupported operator %q", raw, r.Operator)
	}
	return r, nil
}

// Evaluator applies rules with AND semantics. It never returns an error: anything
// that cannot be evaluated counts as not met and is logged.
type Evaluator struct {
	logger logger.Logger
}

func NewEvaluator(log logger.Logger) *Evaluator {
	return &Evaluator{logger: log.Named("precondition")}
}

// Evaluate reports whether every rule holds. An empty rule list holds.
func (e *Evaluator) Evaluate(rules []string, profile *models.UserProfile, fields map[string]interface{}) bool {
	return len(e.Unmet(rules, profile, fields)) == 0
}

// Unmet returns the rules that do not hold, in input order.
func (e *Evaluator) Unmet(rules []string, profile *models.UserProfile, fields map[string]interface{}) []string {
	var unmet []string
	for _, raw := range rules {
		if !e.check(raw, profile, fields) {
			unmet = append(unmet, raw)
		}
	}
	return unmet
}

func (e *Evaluator) check(raw string, profile *models.UserProfile, fields map[string]interface{}) bool {
	rule, err := Parse(raw)
	if err != nil {
		e.logger.Warn("precondition failed to parse", map[string]interface{}{"rule": raw, "error": err.Error()})
		return false
	}

	actual := Resolve(rule.Field, profile, fields)
	if actual == nil {
		return false
	}

	ok, err := operators[rule.Operator](actual, rule.Value)
	if err != nil {
		e.logger.Warn("precondition evaluation failed", map[string]interface{}{"rule": raw, "error": err.Error()})
		return false
	}
	return ok
}

// Resolve looks the field up in the context first, then in the profile attributes.
// Dotted paths walk nested maps.
func Resolve(field string, profile *models.UserProfile, fields map[string]interface{}) interface{} {
	if v := lookupNestedValue(fields, field); v != nil {
		return v
	}
	if profile != nil {
		return lookupNestedValue(profile.Attributes, field)
	}
	return nil
}

func lookupNestedValue(data map[string]interface{}, key string) interface{} {
	if data == nil {
		return nil
	}
	if v, ok := data[key]; ok {
		return v
	}

	current := interface{}(data)
	for _, part := range strings.Split(key, ".") {
		currentMap, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		val, exists := currentMap[part]
		if !exists {
			return nil
		}
		current = val
	}
	return current
}

func numeric(cmp func(a, b float64) bool) operatorFunc {
	return func(actual interface{}, operand string) (bool, error) {
		a, ok := ToNumber(actual)
		if !ok {
			return false, fmt.Errorf("value %v is not numeric", actual)
		}
		b, err := strconv.ParseFloat(operand, 64)
		if err != nil {
			return false, fmt.Errorf("operand %q is not numeric", operand)
		}
		return cmp(a, b), nil
	}
}

// equals compares numerically when both sides are numbers, otherwise as strings.
func equals(actual interface{}, operand string) (bool, error) {
	if a, ok := ToNumber(actual); ok {
		if b, err := strconv.ParseFloat(operand, 64); err == nil {
			return a == b, nil
		}
	}
	return stringify(actual) == operand, nil
}

func membership(actual interface{}, operand string) (bool, error) {
	s := stringify(actual)
	for _, candidate := range strings.Split(operand, ",") {
		if strings.TrimSpace(candidate) == s {
			return true, nil
		}
	}
	return false, nil
}

// ToNumber coerces numeric kinds and numeric strings.
func ToNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}
