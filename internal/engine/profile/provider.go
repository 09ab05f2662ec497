// Package profile provides the user attributes preconditions are evaluated against.
package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"

	"github.com/lib/pq"
)

// Provider is the user-profile port.
type Provider interface {
	GetProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

// PostgresProvider reads the user_profiles table.
type PostgresProvider struct {
	db *sql.DB
}

func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

const selectProfile = `SELECT attributes, compliance_flags FROM user_profiles WHERE user_id = $1`

func (p *PostgresProvider) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var (
		raw   []byte
		flags []string
	)
	err := p.db.QueryRowContext(ctx, selectProfile, userID).Scan(&raw, pq.Array(&flags))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewProfileNotFoundError(userID)
	}
	if err != nil {
		return nil, fmt.Errorf("query profile %s: %w", userID, err)
	}

	attrs := make(map[string]interface{})
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &attrs); err != nil {
			return nil, fmt.Errorf("decode profile attributes %s: %w", userID, err)
		}
	}
	return &models.UserProfile{UserID: userID, Attributes: attrs, ComplianceFlags: flags}, nil
}

// MemoryProvider serves profiles registered in process.
type MemoryProvider struct {
	mu       sync.RWMutex
	profiles map[string]models.UserProfile
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{profiles: make(map[string]models.UserProfile)}
}

func (p *MemoryProvider) Put(profile models.UserProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[profile.UserID] = profile
}

func (p *MemoryProvider) GetProfile(_ context.Context, userID string) (*models.UserProfile, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[userID]
	if !ok {
		return nil, errors.NewProfileNotFoundError(userID)
	}
	attrs := make(map[string]interface{}, len(prof.Attributes))
	for k, v := range prof.Attributes {
		attrs[k] = v
	}
	prof.Attributes = attrs
	prof.ComplianceFlags = append([]string(nil), prof.ComplianceFlags...)
	prof.Consents = append([]models.ConsentRecord(nil), prof.Consents...)
	return &prof, nil
}
