package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Brownie44l1/photo-classifier/internal/config"
	"github.com/Brownie44l1/photo-classifier/internal/handlers"
	"github.com/Brownie44l1/photo-classifier/internal/logger"
	"github.com/Brownie44l1/photo-classifier/internal/model"
	"github.com/Brownie44l1/photo-classifier/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Loading model", zap.String("path", cfg.Model.Path))

	modelServer, err := model.NewServer(cfg.Model.Path, cfg.Model.MetadataPath, cfg.Model.LibraryPath)
	if err != nil {
		return fmt.Errorf("failed to initialize model server: %w", err)
	}
	defer modelServer.Close()

	p, err := pipeline.New(modelServer, pipeline.Options{
		DefaultK:  cfg.Classify.TopK,
		CacheSize: cfg.Classify.CacheSize,
		MaxPixels: cfg.Classify.MaxPixels,
	}, log.Named("pipeline"))
	if err != nil {
		return err
	}

	handler := handlers.NewHandler(p, cfg.Server.MaxUploadSize, log.Named("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	meta := modelServer.Metadata()
	log.Info("Model loaded",
		zap.String("name", meta.Name),
		zap.Int("classes", len(meta.Classes)),
		zap.Int("image_size", meta.ImageSize),
		zap.Int("top_k", cfg.Classify.TopK))

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting",
			zap.String("address", srv.Addr),
			zap.Strings("endpoints", []string{"GET /health", "POST /predict", "POST /predict/image"}))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
	return nil
}
