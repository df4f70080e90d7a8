package main

// Package main is the entry point for the assetwatch server.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite store and restore persisted monitor models
//   - Build the per-entity detection pipeline
//   - Start the REST API, WebSocket stream, and metrics endpoints
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//   1. POST /api/v1/readings → per-entity sliding window
//   2. Full window → feature extraction → multivariate monitor (T2, SPE)
//   3. Combined anomaly score → hysteresis → OK / WARN / ALARM
//   4. Results fan out to SQLite, the audit log, Prometheus, and WebSocket subscribers
//
// Graceful Shutdown:
//   - Stops accepting HTTP requests and closes WebSocket streams
//   - Stops the retention sweep
//   - Flushes and closes the audit log
//   - Closes the SQLite store

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/assetwatch/assetwatch/internal/analytics"
	"github.com/assetwatch/assetwatch/internal/analytics/hysteresis"
	"github.com/assetwatch/assetwatch/internal/audit"
	"github.com/assetwatch/assetwatch/internal/config"
	"github.com/assetwatch/assetwatch/internal/db"
	"github.com/assetwatch/assetwatch/internal/logging"
	"github.com/assetwatch/assetwatch/internal/server"
)

func main() {
	configPath := flag.String("config", "/etc/assetwatch/config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "assetwatch: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	// Load configuration
	mgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return err
	}
	cfg := mgr.Get(ctx)

	// Application logger
	logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	// Audit logger
	auditor, err := audit.NewLogger(logger, &audit.Config{
		AuditLogPath: cfg.Logging.AuditPath,
		MaxSize:      cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAgeDays,
		Compress:     true,
	})
	if err != nil {
		return fmt.Errorf("create audit logger: %w", err)
	}
	defer auditor.Close()

	_ = auditor.Log(ctx, audit.NewEvent(audit.EventConfigLoaded).
		WithDescription(fmt.Sprintf("configuration loaded from %s", configPath)))

	// Most settings need a restart; watch the file anyway so operators can
	// see edits acknowledged in the audit trail.
	go func() {
		for range mgr.Watch(ctx) {
			logger.Info("configuration file changed on disk", zap.String("path", configPath))
			_ = auditor.Log(context.Background(), audit.NewEvent(audit.EventConfigChanged).
				WithDescription("configuration file changed; restart to apply server settings"))
		}
	}()

	// Persistence
	store, err := db.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	// Detection pipeline
	pipelineCfg := analytics.Config{
		WindowSize: cfg.Detection.WindowSize,
		Columns:    cfg.Detection.Columns,
		Components: cfg.Detection.Components,
		Hysteresis: hysteresis.Config{
			WarnThreshold:       cfg.Detection.WarnThreshold,
			AlarmThreshold:      cfg.Detection.AlarmThreshold,
			RequiredConsecutive: cfg.Detection.RequiredConsecutive,
			Margin:              cfg.Detection.AlarmMargin,
		},
	}
	if cfg.Detection.ModelScope == "fleet" {
		pipelineCfg.ScopeFor = func(string) string { return "fleet" }
	}

	pipeline := analytics.NewPipeline(pipelineCfg, logger,
		analytics.WithStore(store),
		analytics.WithAuditor(auditor),
	)
	if err := pipeline.RestoreModels(ctx); err != nil {
		logger.Warn("model restore failed, starting unfitted", zap.Error(err))
	}

	// HTTP server
	srv, err := server.NewServer(cfg, logger, pipeline, store, auditor)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	// Wait for shutdown signal (Ctrl+C or SIGTERM)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("received shutdown signal")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
