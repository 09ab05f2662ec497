package classification

import (
	"context"
	"fmt"

	"workflow-engine/internal/models"
)

// TreeNode is either a split on a numeric context field or a leaf.
type TreeNode struct {
	Field     string
	Threshold float64
	// Above is taken when field >= Threshold, Below otherwise.
	Above *TreeNode
	Below *TreeNode
	Leaf  *TreeLeaf
}

// TreeLeaf is the classification a path ends in. A nil leaf means no opinion.
type TreeLeaf struct {
	Category    string
	SubCategory string
	Priority    models.Priority
	Confidence  float64
	Keywords    []string
}

// DefaultTree splits on the financial signals the projection engine provides.
func DefaultTree() *TreeNode {
	return &TreeNode{
		Field:     "debt_to_income",
		Threshold: 0.4,
		Above: &TreeNode{Leaf: &TreeLeaf{
			Category: "debt", SubCategory: "payoff", Priority: models.PriorityHigh,
			Confidence: 0.7, Keywords: []string{"debt", "payoff"},
		}},
		Below: &TreeNode{
			Field:     "emergency_fund_months",
			Threshold: 3,
			Below: &TreeNode{Leaf: &TreeLeaf{
				Category: "save", SubCategory: "emergency_fund", Priority: models.PriorityHigh,
				Confidence: 0.65, Keywords: []string{"save", "emergency_fund"},
			}},
			Above: &TreeNode{
				Field:     "subscription_count",
				Threshold: 5,
				Above: &TreeNode{Leaf: &TreeLeaf{
					Category: "optimize", SubCategory: "cancel_subscriptions", Priority: models.PriorityMedium,
					Confidence: 0.6, Keywords: []string{"subscriptions", "cancel_subscriptions"},
				}},
				Below: &TreeNode{},
			},
		},
	}
}

// DecisionTreeScorer classifies from numeric context fields only.
type DecisionTreeScorer struct {
	root *TreeNode
}

func NewDecisionTreeScorer(root *TreeNode) *DecisionTreeScorer {
	if root == nil {
		root = DefaultTree()
	}
	return &DecisionTreeScorer{root: root}
}

func (s *DecisionTreeScorer) Name() string { return "decision_tree" }

// Score walks the tree. A split whose field is missing or non-numeric stops the walk with no opinion.
func (s *DecisionTreeScorer) Score(_ context.Context, _ string, fields map[string]interface{}) (models.Classification, bool) {
	var reasons []string
	node := s.root
	for node != nil && node.Leaf == nil {
		if node.Field == "" {
			return models.Classification{}, false
		}
		v, ok := toNumber(fields[node.Field])
		if !ok {
			return models.Classification{}, false
		}
		if v >= node.Threshold {
			reasons = append(reasons, fmt.Sprintf("%s %.2f >= %.2f", node.Field, v, node.Threshold))
			node = node.Above
		} else {
			reasons = append(reasons, fmt.Sprintf("%s %.2f < %.2f", node.Field, v, node.Threshold))
			node = node.Below
		}
	}
	if node == nil || node.Leaf == nil {
		return models.Classification{}, false
	}

	leaf := node.Leaf
	return models.Classification{
		Category:       leaf.Category,
		SubCategory:    leaf.SubCategory,
		IntentKeywords: append([]string{}, leaf.Keywords...),
		Confidence:     clamp01(leaf.Confidence),
		Priority:       leaf.Priority,
		Strategy:       s.Name(),
		MatchReasons:   reasons,
	}, true
}
