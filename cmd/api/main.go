package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	"docvault/internal/http/server"
	"docvault/internal/logging"
	"docvault/internal/otel"
	"docvault/internal/repository/sqlrepo"
	"docvault/internal/service"
	"docvault/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// @title Document Vault API
// @version 1.0
// @description Upload, list, download and delete PDF documents.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("server_exit", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn("tracing_shutdown_failed", zap.Error(err))
		}
	}()

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, cfg.Database.Driver, log); err != nil {
		return err
	}

	store, err := newStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}

	docSvc := service.NewDocumentService(store, sqlrepo.NewDocumentSQL(db),
		service.WithLogger(log.With(zap.String("component", "document_service"))),
		service.WithMaxUploadBytes(cfg.Storage.MaxUploadBytes),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.Driver),
	)

	app, err := server.New(server.Options{
		Config:   cfg,
		DB:       db,
		Service:  docSvc,
		Logger:   log,
		Registry: reg,
	})
	if err != nil {
		return fmt.Errorf("build http app: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server_listening",
			zap.String("addr", addr),
			zap.String("db_driver", cfg.Database.Driver),
			zap.String("storage_backend", cfg.Storage.Backend),
			zap.String("max_upload", humanize.IBytes(uint64(cfg.Storage.MaxUploadBytes))),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	log.Info("server_shutdown")
	return app.ShutdownWithTimeout(shutdownTimeout)
}

func newStorage(c config.StorageConfig) (storage.Storage, error) {
	switch c.Backend {
	case config.BackendMinIO:
		return storage.NewMinIO(c.MinIO)
	case config.BackendFilesystem, "":
		return storage.NewFilesystem(c.Dir)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", c.Backend)
	}
}
