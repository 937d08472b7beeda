package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/luccasmb/protocol-desk/internal/models"
	"github.com/luccasmb/protocol-desk/pkg/jobs"
)

type attachmentBlobStorage interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type attachmentSigner interface {
	Generate(attachmentID, relPath string) (string, time.Time, error)
	Parse(token string) (attachmentID, relPath string, expiresAt time.Time, err error)
}

// Upload describes one incoming file before ingestion.
type Upload struct {
	Filename     string
	Size         int64
	DeclaredType string
	Open         func() (io.ReadCloser, error)
}

// Download bundles a stored attachment stream with its metadata.
type Download struct {
	File      *os.File
	Filename  string
	SizeBytes int64
}

// AttachmentServiceConfig tunes ingestion limits and the purge queue.
type AttachmentServiceConfig struct {
	MaxFileSize  int64
	PurgeWorkers int
}

// AttachmentService reads uploaded files into blob storage and produces
// attachment metadata. Each file is read concurrently under the request
// context; a failed or oversized file is skipped without aborting the batch.
type AttachmentService struct {
	storage    attachmentBlobStorage
	signer     attachmentSigner
	logger     *zap.Logger
	cfg        AttachmentServiceConfig
	purgeQueue *jobs.Queue
}

// NewAttachmentService constructs the service and its background purge queue.
func NewAttachmentService(storage attachmentBlobStorage, signer attachmentSigner, logger *zap.Logger, cfg AttachmentServiceConfig) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	s := &AttachmentService{
		storage: storage,
		signer:  signer,
		logger:  logger,
		cfg:     cfg,
	}
	s.purgeQueue = jobs.NewQueue("attachment-purge", s.handlePurge, jobs.QueueConfig{
		Workers: cfg.PurgeWorkers,
		Logger:  logger,
	})
	return s
}

// Start launches the purge workers.
func (s *AttachmentService) Start(ctx context.Context) {
	s.purgeQueue.Start(ctx)
}

// Stop drains the purge workers.
func (s *AttachmentService) Stop() {
	s.purgeQueue.Stop()
}

// Ingest stores each upload and returns metadata for the ones that
// succeeded, preserving input order.
func (s *AttachmentService) Ingest(ctx context.Context, uploads []Upload, actor string) []models.Attachment {
	if len(uploads) == 0 {
		return nil
	}

	results := make([]*models.Attachment, len(uploads))
	var wg sync.WaitGroup
	for i := range uploads {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			att, err := s.ingestOne(ctx, uploads[i], actor)
			if err != nil {
				s.logger.Warn("attachment skipped",
					zap.String("filename", uploads[i].Filename),
					zap.Error(err),
				)
				return
			}
			results[i] = att
		}(i)
	}
	wg.Wait()

	out := make([]models.Attachment, 0, len(uploads))
	for _, att := range results {
		if att != nil {
			out = append(out, *att)
		}
	}
	return out
}

func (s *AttachmentService) ingestOne(ctx context.Context, upload Upload, actor string) (*models.Attachment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if upload.Open == nil {
		return nil, fmt.Errorf("no content")
	}
	rc, err := upload.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer rc.Close() //nolint:errcheck

	limited := io.LimitReader(&contextReader{ctx: ctx, r: rc}, s.cfg.MaxFileSize+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes limit", s.cfg.MaxFileSize)
	}

	mimeType := upload.DeclaredType
	if mimeType == "" {
		mimeType = mimetype.Detect(data).String()
	}

	id := uuid.NewString()
	relPath := filepath.Join(time.Now().UTC().Format("2006/01"), id+filepath.Ext(upload.Filename))
	path, err := s.storage.SaveStream(relPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	return &models.Attachment{
		ID:          id,
		Filename:    upload.Filename,
		SizeBytes:   int64(len(data)),
		MimeType:    mimeType,
		StoragePath: path,
		UploadedBy:  actor,
		UploadedAt:  time.Now().UTC(),
	}, nil
}

// SignDownload returns a signed token for the given attachment.
func (s *AttachmentService) SignDownload(att models.Attachment) (string, time.Time, error) {
	return s.signer.Generate(att.ID, att.StoragePath)
}

// OpenDownload validates the token and opens the referenced blob.
func (s *AttachmentService) OpenDownload(token string) (*Download, error) {
	id, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("invalid download token: %w", err)
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, fmt.Errorf("open attachment %s: %w", id, err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat attachment %s: %w", id, err)
	}
	return &Download{
		File:      file,
		Filename:  filepath.Base(relPath),
		SizeBytes: info.Size(),
	}, nil
}

// PurgeAsync schedules blob deletion for the given storage paths. Deletion is
// best-effort; records referencing the paths are already gone.
func (s *AttachmentService) PurgeAsync(paths []string) {
	for _, path := range paths {
		if path == "" {
			continue
		}
		job := jobs.Job{
			ID:      uuid.NewString(),
			Type:    "purge",
			Payload: path,
		}
		if err := s.purgeQueue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue attachment purge", zap.String("path", path), zap.Error(err))
		}
	}
}

func (s *AttachmentService) handlePurge(ctx context.Context, job jobs.Job) error {
	path, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected purge payload %T", job.Payload)
	}
	if err := s.storage.Delete(path); err != nil {
		return err
	}
	s.logger.Debug("attachment purged", zap.String("path", path))
	return nil
}

// contextReader aborts an in-flight read once the context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *contextReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
