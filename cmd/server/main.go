package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/luccasmb/protocol-desk/internal/handler"
	"github.com/luccasmb/protocol-desk/internal/middleware"
	"github.com/luccasmb/protocol-desk/internal/models"
	"github.com/luccasmb/protocol-desk/internal/repository"
	"github.com/luccasmb/protocol-desk/internal/service"
	"github.com/luccasmb/protocol-desk/pkg/cache"
	"github.com/luccasmb/protocol-desk/pkg/config"
	"github.com/luccasmb/protocol-desk/pkg/database"
	"github.com/luccasmb/protocol-desk/pkg/export"
	"github.com/luccasmb/protocol-desk/pkg/logger"
	corsmiddleware "github.com/luccasmb/protocol-desk/pkg/middleware/cors"
	reqidmiddleware "github.com/luccasmb/protocol-desk/pkg/middleware/requestid"
	"github.com/luccasmb/protocol-desk/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := buildRepository(ctx, cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init persistence backend", "backend", cfg.Store.Backend, "error", err)
	}
	defer cleanup()

	blobs, err := storage.NewLocalStorage(cfg.Attachments.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init attachment storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Attachments.SignedURLSecret, cfg.Attachments.SignedURLTTL)

	metricsSvc := service.NewMetricsService()

	attachmentSvc := service.NewAttachmentService(blobs, signer, logr, service.AttachmentServiceConfig{
		MaxFileSize:  cfg.Attachments.MaxFileSize,
		PurgeWorkers: cfg.Attachments.PurgeWorkers,
	})
	attachmentSvc.Start(ctx)
	defer attachmentSvc.Stop()

	protocolSvc := service.NewProtocolService(repo, attachmentSvc, metricsSvc, validator.New(), logr)
	exportSvc := service.NewExportService(
		export.NewXLSXExporter(),
		export.NewCSVExporter(),
		export.NewPDFExporter(),
		metricsSvc,
		logr,
	)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Identity())
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, handler.Handlers{
		Protocols:   handler.NewProtocolHandler(protocolSvc, attachmentSvc),
		Attachments: handler.NewAttachmentHandler(protocolSvc, attachmentSvc, cfg.APIPrefix),
		Exports:     handler.NewExportHandler(protocolSvc, exportSvc),
		Metrics:     handler.NewMetricsHandler(metricsSvc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "backend", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("shutdown incomplete", "error", err)
	}
}

// protocolRepo is the persistence backend contract consumed by the store.
type protocolRepo interface {
	LoadAll(ctx context.Context) ([]models.Protocol, error)
	SaveAll(ctx context.Context, records []models.Protocol) error
}

func buildRepository(ctx context.Context, cfg *config.Config, logr *zap.Logger) (protocolRepo, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendFile:
		repo, err := repository.NewFileRepository(cfg.Store.FilePath, logr)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	case config.BackendRedis:
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewRedisRepository(client, cfg.Store.RedisKey, logr)
		return repo, func() { _ = client.Close() }, nil
	case config.BackendPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewPostgresRepository(db, logr)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
