package execution

import (
	"context"
	"encoding/json"
	"time"

	"workflow-engine/internal/common/errors"
	"workflow-engine/internal/models"

	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 5

// RedisStore keeps each record as JSON under execution:<key> and indexes keys per user
// in the set execution:user:<user_id>. Creation uses SETNX; updates use WATCH/MULTI.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a store; ttl of zero keeps records forever.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func recordKey(key string) string     { return "execution:" + key }
func userIndexKey(user string) string { return "execution:user:" + user }

func (s *RedisStore) CreateIfAbsent(ctx context.Context, rec models.ExecutionRecord) (models.ExecutionRecord, bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return models.ExecutionRecord{}, false, errors.NewIdempotencyStoreError(err)
	}

	created, err := s.client.SetNX(ctx, recordKey(rec.IdempotencyKey), data, s.ttl).Result()
	if err != nil {
		return models.ExecutionRecord{}, false, errors.NewIdempotencyStoreError(err)
	}
	if !created {
		existing, err := s.Get(ctx, rec.IdempotencyKey)
		return existing, false, err
	}

	if err := s.client.SAdd(ctx, userIndexKey(rec.UserID), rec.IdempotencyKey).Err(); err != nil {
		return rec, true, errors.NewIdempotencyStoreError(err)
	}
	return rec, true, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (models.ExecutionRecord, error) {
	data, err := s.client.Get(ctx, recordKey(key)).Bytes()
	if err == redis.Nil {
		return models.ExecutionRecord{}, errors.NewExecutionNotFoundError(key)
	}
	if err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	return decodeRecord(data)
}

func (s *RedisStore) Update(ctx context.Context, key string, fn func(*models.ExecutionRecord) error) (models.ExecutionRecord, error) {
	rk := recordKey(key)
	for i := 0; i < maxTxRetries; i++ {
		var out models.ExecutionRecord
		var fnErr error

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, rk).Bytes()
			if err == redis.Nil {
				return errors.NewExecutionNotFoundError(key)
			}
			if err != nil {
				return err
			}
			current, err := decodeRecord(data)
			if err != nil {
				return err
			}

			working := current.Clone()
			if err := fn(&working); err != nil {
				out, fnErr = current, err
				return nil
			}
			updated, err := json.Marshal(working)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, rk, updated, s.ttl)
				return nil
			})
			out = working
			return err
		}, rk)

		switch {
		case err == redis.TxFailedErr:
			continue
		case err != nil:
			if errors.HasCode(err, errors.ErrCodeExecutionNotFound) {
				return models.ExecutionRecord{}, err
			}
			return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
		case fnErr != nil:
			return out, fnErr
		default:
			return out, nil
		}
	}
	return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(redis.TxFailedErr)
}

func (s *RedisStore) ListByUser(ctx context.Context, userID string) ([]models.ExecutionRecord, error) {
	keys, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, errors.NewIdempotencyStoreError(err)
	}
	if len(keys) == 0 {
		return []models.ExecutionRecord{}, nil
	}

	recordKeys := make([]string, len(keys))
	for i, k := range keys {
		recordKeys[i] = recordKey(k)
	}
	values, err := s.client.MGet(ctx, recordKeys...).Result()
	if err != nil {
		return nil, errors.NewIdempotencyStoreError(err)
	}

	out := make([]models.ExecutionRecord, 0, len(values))
	for _, v := range values {
		// Expired records leave a dangling index entry.
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sortByStart(out)
	return out, nil
}

func decodeRecord(data []byte) (models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.ExecutionRecord{}, errors.NewIdempotencyStoreError(err)
	}
	return rec, nil
}
