package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-ddd-task-sync/config"
	"github.com/oksasatya/go-ddd-task-sync/internal/infrastructure"
	"github.com/oksasatya/go-ddd-task-sync/internal/infrastructure/export"
	"github.com/oksasatya/go-ddd-task-sync/pkg/helpers"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-export", cfg.Env)

	if cfg.GCSBucket == "" {
		logger.Fatal("GCS_BUCKET not configured")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	store, err := infrastructure.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	gcsClient, err := helpers.NewGCSClient(ctx, cfg.GCSCredentialsJSONPath)
	if err != nil {
		logger.Fatalf("failed to init GCS client: %v", err)
	}
	defer func() { _ = gcsClient.Close() }()

	ex := &export.Exporter{Store: store, GCS: gcsClient, Bucket: cfg.GCSBucket, Prefix: cfg.ExportPrefix, Logger: logger}
	urls, err := ex.Run(ctx, time.Now())
	if err != nil {
		logger.Fatalf("export failed: %v", err)
	}
	for _, u := range urls {
		fmt.Println(u)
	}
}
