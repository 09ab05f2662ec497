// Package consent decides whether required consent grants are present and unexpired.
package consent

import (
	"time"

	"workflow-engine/internal/models"
)

// HasConsent reports whether every required type has an active grant at now.
func HasConsent(required []string, records []models.ConsentRecord, now time.Time) bool {
	return len(Missing(required, records, now)) == 0
}

// Missing returns the required types without an active grant, in input order.
// When several records share a type, any active one satisfies it.
func Missing(required []string, records []models.ConsentRecord, now time.Time) []string {
	active := make(map[string]bool, len(records))
	for _, r := range records {
		if r.ActiveAt(now) {
			active[r.ConsentType] = true
		}
	}

	var missing []string
	seen := make(map[string]bool, len(required))
	for _, req := range required {
		if seen[req] {
			continue
		}
		seen[req] = true
		if !active[req] {
			missing = append(missing, req)
		}
	}
	return missing
}
