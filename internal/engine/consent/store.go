package consent

import (
	"context"
	"database/sql"
	"sync"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"
)

// Store is the consent port: getConsents(user_id).
type Store interface {
	GetConsents(ctx context.Context, userID string) ([]models.ConsentRecord, error)
}

// PostgresStore reads grants from the user_consents table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const selectConsents = `SELECT consent_type, granted, granted_at, expires_at
FROM user_consents WHERE user_id = $1 ORDER BY consent_type`

func (s *PostgresStore) GetConsents(ctx context.Context, userID string) ([]models.ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, selectConsents, userID)
	if err != nil {
		return nil, errors.NewConsentStoreError(userID, err)
	}
	defer rows.Close()

	var out []models.ConsentRecord
	for rows.Next() {
		var (
			rec     models.ConsentRecord
			expires sql.NullTime
		)
		if err := rows.Scan(&rec.ConsentType, &rec.Granted, &rec.GrantedAt, &expires); err != nil {
			return nil, errors.NewConsentStoreError(userID, err)
		}
		if expires.Valid {
			t := expires.Time
			rec.ExpiresAt = &t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewConsentStoreError(userID, err)
	}
	return out, nil
}

// MemoryStore serves grants held in process, used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]models.ConsentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]models.ConsentRecord)}
}

// Put replaces the grants of a user.
func (s *MemoryStore) Put(userID string, records []models.ConsentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[userID] = append([]models.ConsentRecord(nil), records...)
}

func (s *MemoryStore) GetConsents(_ context.Context, userID string) ([]models.ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ConsentRecord(nil), s.records[userID]...), nil
}
