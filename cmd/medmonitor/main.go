package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"MedMonitor/internal/app"
	"MedMonitor/internal/config"
	"MedMonitor/internal/logging"
)

func main() {
	sourceID := flag.String("source", "", "ingest a single source id instead of all")
	initSchema := flag.Bool("init-schema", false, "create database tables and exit")
	sweepStale := flag.Duration("sweep-stale", 0, "close runs open longer than this duration and exit")
	showMetrics := flag.Bool("metrics", false, "print aggregate store metrics and exit")
	flag.Parse()

	cfg := config.Load()
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if *initSchema {
		if err := application.InitSchema(ctx); err != nil {
			logger.Error("schema initialization failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if *sweepStale > 0 {
		closed, err := application.SweepStaleRuns(ctx, *sweepStale)
		if err != nil {
			logger.Error("stale run sweep failed", "error", err)
			os.Exit(1)
		}
		logger.Info("stale run sweep finished", "closed", closed)
		return
	}

	if *showMetrics {
		metrics, err := application.Metrics(ctx)
		if err != nil {
			logger.Error("metrics query failed", "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(metrics); err != nil {
			logger.Error("encode metrics", "error", err)
			os.Exit(1)
		}
		return
	}

	summary, runErr := application.Run(ctx, *sourceID)
	if runErr != nil {
		logger.Error("ingestion run failed", "error", runErr)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		logger.Error("encode summary", "error", err)
		os.Exit(1)
	}

	os.Exit(summary.ExitCode())
}
