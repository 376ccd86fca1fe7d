package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"auction-pipeline/config"
	"auction-pipeline/models"
	"auction-pipeline/services"
	"auction-pipeline/storage"
	"auction-pipeline/utils"
)

func main() {
	mode := flag.String("mode", "ingest", "migrate | ingest | flatten")
	flatDir := flag.String("dir", "", "directory of snapshot files to flatten (defaults to ARCHIVE_DIR)")
	flag.Parse()

	logger := utils.NewLogger()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Auction pipeline starting (mode: %s) ===", *mode)

	var err error
	switch *mode {
	case "migrate":
		err = runMigrate(ctx, cfg, logger)
	case "ingest":
		err = runIngest(ctx, cfg, logger)
	case "flatten":
		dir := *flatDir
		if dir == "" {
			dir = cfg.ArchiveDir
		}
		err = runFlatten(ctx, cfg, logger, dir)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}

	switch {
	case err == nil:
		logger.Info("=== Done ===")
	case errors.Is(err, models.ErrNoNewData):
		logger.Info("No new data since the last run")
	default:
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func retryConfig(cfg *config.Config, logger *utils.Logger) *utils.RetryConfig {
	return &utils.RetryConfig{MaxAttempts: cfg.MaxRetries, BaseDelay: 500 * time.Millisecond, Logger: logger}
}

func openStore(ctx context.Context, cfg *config.Config, logger *utils.Logger) (*storage.Loader, func(), error) {
	dialect, err := storage.DialectFor(cfg.DBDriver)
	if err != nil {
		return nil, nil, err
	}
	if dialect.Driver == storage.SQLite.Driver {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := storage.Open(dialect, cfg.DSN(), retryConfig(cfg, logger))
	if err != nil {
		if dialect.Driver != storage.SQLite.Driver {
			logger.Error("Make sure PostgreSQL is running: docker compose up -d")
		}
		return nil, nil, err
	}
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return storage.NewLoader(db, dialect, logger), func() { _ = db.Close() }, nil
}

func runMigrate(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	_, closeDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()
	logger.Info("Schema ready (%s)", cfg.DBDriver)
	return nil
}

func runIngest(ctx context.Context, cfg *config.Config, logger *utils.Logger) error {
	loader, closeDB, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeDB()

	var markers storage.MarkerStore = storage.NewFileMarkerStore(cfg.MarkerPath)
	var lock storage.RunLock
	if cfg.RedisURL != "" {
		client, err := storage.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		markers = storage.NewRedisMarkerStore(client, cfg.MarkerKey)
		lock = storage.NewRedisLock(client, cfg.LockKey, time.Duration(cfg.LockTTLSec)*time.Second)
		logger.Info("Using Redis for the freshness marker and run lock")
	}

	manifest, err := storage.NewCSVWriter(cfg.ManifestCSVPath)
	if err != nil {
		return err
	}
	defer manifest.Close()

	ingestor := services.NewIngestor(
		services.IngestOptions{InputDir: cfg.InputDir, ErrorDir: cfg.ErrorDir, SkipNonBIN: cfg.SkipNonBIN},
		services.NewChangeGate(markers),
		loader,
		storage.NewDirArchiver(cfg.ArchiveDir, retryConfig(cfg, logger)),
		manifest,
		lock,
		logger,
	)

	report, err := ingestor.Run(ctx)
	if err != nil {
		return err
	}
	services.NewReportService(logger).Print(report)
	fmt.Printf("  Manifest → %s | Failed listings → %s\n\n", cfg.ManifestCSVPath, cfg.ErrorDir)
	return nil
}

func runFlatten(ctx context.Context, cfg *config.Config, logger *utils.Logger, dir string) error {
	files, err := storage.ListSnapshots(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logger.Warn("No snapshot files in %s", dir)
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.FlatDBPath), 0755); err != nil {
		return fmt.Errorf("create flat db dir: %w", err)
	}
	db, err := storage.Open(storage.SQLite, config.SQLiteDSN(cfg.FlatDBPath), retryConfig(cfg, logger))
	if err != nil {
		return err
	}
	defer db.Close()

	flattener := services.NewFlattener(
		services.FlattenOptions{
			BatchSize:    cfg.FlattenBatchSize,
			Workers:      cfg.FlattenWorkers,
			LogQueueSize: cfg.LogQueueSize,
			SkipNonBIN:   cfg.SkipNonBIN,
			RateLimitMs:  cfg.FlattenRateLimitMs,
		},
		storage.NewFlatTable(db, storage.SQLite, cfg.FlatTable),
		utils.NewConsoleSink(),
		storage.NewFileErrorSink(cfg.ErrorDir, "flatten"),
	)

	stats, err := flattener.Run(ctx, files)
	if err != nil {
		return err
	}
	fmt.Printf("\n  Flattened %d files → %s (%s): %d rows, %d columns\n\n",
		stats.Files, cfg.FlatDBPath, cfg.FlatTable, stats.Rows, stats.Columns)
	return nil
}
