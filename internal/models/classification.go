// internal/models/classification.go
package models

// Priority ranks how urgently a recommendation should be acted on.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities so that critical > high > medium > low. Unknown values rank lowest.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// CategoryUncategorized is returned when no strategy produced a hit.
const CategoryUncategorized = "uncategorized"

// Classification is the categorized reading of one recommendation. Request-scoped.
type Classification struct {
	Category       string   `json:"category"`
	SubCategory    string   `json:"sub_category"`
	IntentKeywords []string `json:"intent_keywords"`
	Confidence     float64  `json:"confidence"`
	Priority       Priority `json:"priority"`
	Strategy       string   `json:"strategy,omitempty"`
	MatchReasons   []string `json:"match_reasons,omitempty"`
}

// Uncategorized returns the empty-result classification.
func Uncategorized() Classification {
	return Classification{
		Category:       CategoryUncategorized,
		IntentKeywords: []string{},
		Confidence:     0.0,
		Priority:       PriorityLow,
	}
}
