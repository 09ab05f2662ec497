package explanation

import "workflow-engine/internal/models"

// genericKey is the global fallback template.
const genericKey = "*"

// DefaultTemplates are the built-in rationales served when nothing better is cached.
// Keys are a category, or "*" for the global fallback.
func DefaultTemplates() map[string]models.Rationale {
	return map[string]models.Rationale{
		"optimize": {
			WhyRecommended:    "Recurring charges you no longer use are money leaving every month without a return.",
			KeyConsiderations: []string{"Check for annual plans billed once a year", "Some services charge a cancellation fee"},
			NuanceGuidance:    "Keep anything you used in the last 30 days; cancel the rest and revisit in a quarter.",
			RiskAssessment:    "Low: cancellations can be reversed by re-subscribing.",
		},
		"save": {
			WhyRecommended:    "A cash cushion keeps a surprise expense from turning into high-interest debt.",
			KeyConsiderations: []string{"Aim for three to six months of essential expenses", "Keep the fund in an insured, liquid account"},
			NuanceGuidance:    "Start small and automate; consistency matters more than the first amount.",
			RiskAssessment:    "Low to medium: transfers reduce available checking balance.",
		},
		"debt": {
			WhyRecommended:    "Paying down the highest-rate balance first lowers the total interest you pay.",
			KeyConsiderations: []string{"Keep minimum payments current on every account", "Extra payments should not drain your emergency fund"},
			NuanceGuidance:    "If motivation matters more than math, clearing the smallest balance first is a valid choice.",
			RiskAssessment:    "Medium: extra payments reduce liquidity until the balance is cleared.",
		},
		"invest": {
			WhyRecommended:    "Tax-advantaged accounts let long-term savings compound faster.",
			KeyConsiderations: []string{"Capture any employer match first", "Check contribution limits for the year"},
			NuanceGuidance:    "Make sure short-term needs are covered before locking money away.",
			RiskAssessment:    "Medium: market value can fall in the short term.",
		},
		"budget": {
			WhyRecommended:    "Seeing where money goes each month is the fastest way to find room to save.",
			KeyConsiderations: []string{"Group spending into a handful of categories", "Compare against the last three months, not one"},
			NuanceGuidance:    "Target one or two categories at a time rather than cutting everything.",
			RiskAssessment:    "Low: review only, no money moves.",
		},
		genericKey: {
			WhyRecommended:    "This action fits the goal described in your recommendation.",
			KeyConsiderations: []string{"Review the steps before approving", "You can cancel before the workflow finishes"},
			NuanceGuidance:    "If anything looks unfamiliar, pause and review your accounts first.",
			RiskAssessment:    "Varies with the workflow; see its rollback policy.",
		},
	}
}

// nearestTemplate returns the category template or the global one.
func nearestTemplate(templates map[string]models.Rationale, category string) models.Rationale {
	if r, ok := templates[category]; ok {
		return cloneRationale(r)
	}
	return cloneRationale(templates[genericKey])
}

func cloneRationale(r models.Rationale) models.Rationale {
	r.KeyConsiderations = append([]string(nil), r.KeyConsiderations...)
	return r
}
