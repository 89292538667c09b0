package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"dupligone/internal/blobstore"
	"dupligone/internal/catalog"
	"dupligone/internal/config"
	"dupligone/internal/httpapi"
	"dupligone/internal/logging"
	"dupligone/internal/maintenance"
	"dupligone/internal/pipeline"
	"dupligone/internal/quality"
	"dupligone/internal/queue"
	"dupligone/internal/worker"
)

func main() {
	cfg := config.Load()
	log := logging.Init(cfg.LogLevel, cfg.LogFormat)
	defer logging.Sync()

	if !cfg.HasCatalog() {
		log.Fatal("catalog credentials missing (CATALOG_URL / CATALOG_DB)")
	}
	if !cfg.HasBlobStore() {
		log.Fatal("blob store credentials missing (BLOB_CONNECTION / BLOB_CONTAINER / BLOB_ACCESS_KEY_ID / BLOB_SECRET_ACCESS_KEY)")
	}

	cat := catalog.New(cfg.CatalogURL, cfg.CatalogDB, cfg.CatalogAuth)
	bootstrapCtx, cancelBootstrap := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBootstrap()
	if err := cat.EnsureSchema(bootstrapCtx); err != nil {
		log.Fatal("ensure schema failed", zap.Error(err))
	}
	log.Info("catalog schema ready")

	blobs, err := blobstore.New(bootstrapCtx, blobstore.Config{
		Endpoint:  cfg.BlobConnection,
		Region:    cfg.BlobRegion,
		Bucket:    cfg.BlobContainer,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
	})
	if err != nil {
		log.Fatal("init blob store failed", zap.Error(err))
	}

	broker, err := queue.New(cfg.QueueURL)
	if err != nil {
		log.Fatal("init job queue failed", zap.Error(err))
	}
	defer broker.Close()

	qualityEngine := quality.NewEngine(nil)
	pipe := pipeline.New(cfg, cat, blobs, broker, qualityEngine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wk := worker.New(cfg, broker, pipe)
	go func() {
		if err := wk.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("worker runtime exited", zap.Error(err))
		}
	}()

	sweeper := maintenance.New(cfg, cat, blobs)
	go sweeper.Run(ctx)

	server := httpapi.NewServer(pipe, broker, cat)
	httpSrv := &http.Server{Addr: cfg.ListenAddr, Handler: server.Router()}
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("shutdown complete")
}
