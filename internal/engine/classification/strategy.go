// Package classification turns recommendation text and context into a single Classification.
package classification

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"workflow-engine/internal/models"
)

// Strategy is one scorer in the ordered list the Engine combines.
// Score reports false when the strategy has nothing to say about the input.
type Strategy interface {
	Name() string
	Score(ctx context.Context, text string, fields map[string]interface{}) (models.Classification, bool)
}

var tokenSplit = regexp.MustCompile(`[^a-z0-9()]+`)

// tokenize lowercases and splits on anything that is not a letter, digit or parenthesis.
func tokenize(text string) []string {
	raw := tokenSplit.Split(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		t = strings.Trim(t, "()")
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func toNumber(v interface{}) (float64, bool) {
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

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		found := false
		for _, d := range dst {
			if d == it {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, it)
		}
	}
	return dst
}
