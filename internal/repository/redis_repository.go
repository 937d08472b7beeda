package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/luccasmb/protocol-desk/internal/models"
)

// RedisRepository persists the record set as a single JSON value in Redis.
type RedisRepository struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisRepository constructs the repository.
func NewRedisRepository(client *redis.Client, key string, logger *zap.Logger) *RedisRepository {
	if key == "" {
		key = "protocols_v2"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRepository{client: client, key: key, logger: logger}
}

// LoadAll reads the full record set. A missing key or unparseable content
// yields an empty set.
func (r *RedisRepository) LoadAll(ctx context.Context) ([]models.Protocol, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []models.Protocol{}, nil
		}
		return nil, fmt.Errorf("read record set: %w", err)
	}
	records, ok := decodeRecordSet(raw)
	if !ok {
		r.logger.Warn("record set unparseable, treating as empty", zap.String("key", r.key))
	}
	return records, nil
}

// SaveAll replaces the stored record set.
func (r *RedisRepository) SaveAll(ctx context.Context, records []models.Protocol) error {
	raw, err := encodeRecordSet(records)
	if err != nil {
		return fmt.Errorf("encode record set: %w", err)
	}
	if err := r.client.Set(ctx, r.key, raw, 0).Err(); err != nil {
		return fmt.Errorf("write record set: %w", err)
	}
	return nil
}
