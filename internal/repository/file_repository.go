package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/luccasmb/protocol-desk/internal/models"
)

// FileRepository persists the record set as a JSON file on local disk.
type FileRepository struct {
	path   string
	logger *zap.Logger
}

// NewFileRepository constructs the repository and ensures the parent directory exists.
func NewFileRepository(path string, logger *zap.Logger) (*FileRepository, error) {
	if path == "" {
		return nil, fmt.Errorf("file repository requires a path")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &FileRepository{path: path, logger: logger}, nil
}

// LoadAll reads the full record set. A missing file or unparseable content
// yields an empty set.
func (r *FileRepository) LoadAll(ctx context.Context) ([]models.Protocol, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Protocol{}, nil
		}
		return nil, fmt.Errorf("read record set: %w", err)
	}
	records, ok := decodeRecordSet(raw)
	if !ok {
		r.logger.Warn("record set unparseable, treating as empty", zap.String("path", r.path))
	}
	return records, nil
}

// SaveAll replaces the stored record set atomically (write to temp, rename).
func (r *FileRepository) SaveAll(ctx context.Context, records []models.Protocol) error {
	raw, err := encodeRecordSet(records)
	if err != nil {
		return fmt.Errorf("encode record set: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write record set: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace record set: %w", err)
	}
	return nil
}
