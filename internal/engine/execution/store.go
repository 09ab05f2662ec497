package execution

import (
	"context"
	"sort"
	"sync"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"
)

// Store persists execution records keyed by idempotency key with a per-user index.
type Store interface {
	// CreateIfAbsent atomically inserts rec unless its key exists. It returns the
	// stored record and whether this call created it.
	CreateIfAbsent(ctx context.Context, rec models.ExecutionRecord) (models.ExecutionRecord, bool, error)
	Get(ctx context.Context, key string) (models.ExecutionRecord, error)
	// Update applies fn to the current record under the key's lock. A non-nil
	// error from fn aborts the update and is returned unchanged.
	Update(ctx context.Context, key string, fn func(*models.ExecutionRecord) error) (models.ExecutionRecord, error)
	ListByUser(ctx context.Context, userID string) ([]models.ExecutionRecord, error)
}

// MemoryStore keeps records in process. One mutex serializes writers.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.ExecutionRecord
	byUser  map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]models.ExecutionRecord),
		byUser:  make(map[string][]string),
	}
}

func (s *MemoryStore) CreateIfAbsent(_ context.Context, rec models.ExecutionRecord) (models.ExecutionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[rec.IdempotencyKey]; ok {
		return existing.Clone(), false, nil
	}
	s.records[rec.IdempotencyKey] = rec.Clone()
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], rec.IdempotencyKey)
	return rec.Clone(), true, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return models.ExecutionRecord{}, errors.NewExecutionNotFoundError(key)
	}
	return rec.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, key string, fn func(*models.ExecutionRecord) error) (models.ExecutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return models.ExecutionRecord{}, errors.NewExecutionNotFoundError(key)
	}
	working := rec.Clone()
	if err := fn(&working); err != nil {
		return rec.Clone(), err
	}
	s.records[key] = working.Clone()
	return working, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string) ([]models.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ExecutionRecord, 0, len(s.byUser[userID]))
	for _, key := range s.byUser[userID] {
		out = append(out, s.records[key].Clone())
	}
	sortByStart(out)
	return out, nil
}

func sortByStart(records []models.ExecutionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].StartedAt.Equal(records[j].StartedAt) {
			return records[i].StartedAt.Before(records[j].StartedAt)
		}
		return records[i].IdempotencyKey < records[j].IdempotencyKey
	})
}
