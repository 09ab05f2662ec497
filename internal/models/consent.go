// internal/models/consent.go
package models

import "time"

// ConsentRecord is one grant owned by the user profile. Read-only to the engine.
type ConsentRecord struct {
	ConsentType string     `json:"consent_type"`
	Granted     bool       `json:"granted"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the grant is in force at now.
func (c ConsentRecord) ActiveAt(now time.Time) bool {
	if !c.Granted {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// UserProfile carries the attributes preconditions are evaluated against.
type UserProfile struct {
	UserID          string                 `json:"user_id"`
	Attributes      map[string]interface{} `json:"attributes"`
	Consents        []ConsentRecord        `json:"consents,omitempty"`
	ComplianceFlags []string               `json:"compliance_flags,omitempty"`
}
