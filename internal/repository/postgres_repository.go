package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/luccasmb/protocol-desk/internal/models"
)

// PostgresRepository persists the record set as a single JSON blob row.
// The full-replace contract matches the other backends; no per-record schema
// is maintained.
type PostgresRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *sqlx.DB, logger *zap.Logger) *PostgresRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresRepository{db: db, logger: logger}
}

// EnsureSchema creates the blob table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	const query = `CREATE TABLE IF NOT EXISTS protocol_record_sets (
		id SMALLINT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure record set schema: %w", err)
	}
	return nil
}

// LoadAll reads the full record set. A missing row or unparseable payload
// yields an empty set.
func (r *PostgresRepository) LoadAll(ctx context.Context) ([]models.Protocol, error) {
	const query = `SELECT payload FROM protocol_record_sets WHERE id = 1`
	var payload string
	if err := r.db.GetContext(ctx, &payload, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Protocol{}, nil
		}
		return nil, fmt.Errorf("read record set: %w", err)
	}
	records, ok := decodeRecordSet([]byte(payload))
	if !ok {
		r.logger.Warn("record set unparseable, treating as empty")
	}
	return records, nil
}

// SaveAll replaces the stored record set via upsert.
func (r *PostgresRepository) SaveAll(ctx context.Context, records []models.Protocol) error {
	raw, err := encodeRecordSet(records)
	if err != nil {
		return fmt.Errorf("encode record set: %w", err)
	}
	const query = `INSERT INTO protocol_record_sets (id, payload, updated_at)
	VALUES (1, $1, $2)
	ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, string(raw), time.Now().UTC()); err != nil {
		return fmt.Errorf("write record set: %w", err)
	}
	return nil
}
