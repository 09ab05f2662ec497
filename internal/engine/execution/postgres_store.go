package execution

import (
	"context"
	"database/sql"
	"encoding/json"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"
)

const (
	insertExecutionSQL = `INSERT INTO execution_records (idempotency_key, workflow_id, user_id, status, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (idempotency_key) DO NOTHING`
	selectExecutionSQL          = `SELECT record FROM execution_records WHERE idempotency_key = $1`
	selectExecutionForUpdateSQL = `SELECT record FROM execution_records WHERE idempotency_key = $1 FOR UPDATE`
	updateExecutionSQL          = `UPDATE execution_records SET status = $2, record = $3, updated_at = $4 WHERE idempotency_key = $1`
	listExecutionsByUserSQL     = `SELECT record FROM execution_records WHERE user_id = $1 ORDER BY created_at, idempotency_key`
)

// PostgresStore relies on the primary key of execution_records for check-and-create
// and on row locks for updates.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreateIfAbsent(ctx context.Context, rec models.ExecutionRecord) (models.ExecutionRecord, bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return models.ExecutionRecord{}, false, errors.NewIdempotencyStoreError(err)
	}

	res, err := s.db.ExecContext(ctx, insertExecutionSQL,
		rec.IdempotencyKey, rec.WorkflowID, rec.UserID, string(rec.Status), data, rec.StartedAt)
	if err != nil {
		return models.ExecutionRecord{}, false, errors.NewIdempotencyStoreError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.ExecutionRecord{}, false, errors.NewIdempotencyStoreError(err)
	}
	if n == 0 {
		existing, err := s.Get(ctx, rec.IdempotencyKey)
		return existing, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (models.ExecutionRecord, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, selectExecutionSQL, key).Scan(&data)
	if err == sql.ErrNoRows {
		return models.ExecutionRecord{}, errors.NewExecutionNotFoundError(key)
	}
	if err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	return decodeRecord(data)
}

func (s *PostgresStore) Update(ctx context.Context, key string, fn func(*models.ExecutionRecord) error) (models.ExecutionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, selectExecutionForUpdateSQL, key).Scan(&data)
	if err == sql.ErrNoRows {
		return models.ExecutionRecord{}, errors.NewExecutionNotFoundError(key)
	}
	if err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	current, err := decodeRecord(data)
	if err != nil {
		return models.ExecutionRecord{}, err
	}

	working := current.Clone()
	if err := fn(&working); err != nil {
		return current, err
	}

	updated, err := json.Marshal(working)
	if err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	if _, err := tx.ExecContext(ctx, updateExecutionSQL, key, string(working.Status), updated, working.UpdatedAt); err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	if err := tx.Commit(); err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	return working, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]models.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, listExecutionsByUserSQL, userID)
	if err != nil {
		return nil, errors.NewIdempotencyStoreError(err)
	}
	defer rows.Close()

	out := []models.ExecutionRecord{}
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.NewIdempotencyStoreError(err)
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewIdempotencyStoreError(err)
	}
	return out, nil
}
