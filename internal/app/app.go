package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"MedMonitor/internal/collector"
	"MedMonitor/internal/config"
	"MedMonitor/internal/domain"
	"MedMonitor/internal/enrich"
	"MedMonitor/internal/infrastructure/fetch"
	"MedMonitor/internal/infrastructure/source"
	"MedMonitor/internal/infrastructure/storage"
	"MedMonitor/internal/logging"
	"MedMonitor/internal/usecase"
)

// Application wires configs to the ingestion pipeline and owns the database
// handle lifecycle.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	db       *sql.DB
	store    *storage.PostgresStore
	pipeline *usecase.Pipeline
}

// New builds a runnable application instance. A source whose configuration
// fails validation is skipped and reported in every run summary; a missing
// or malformed company dataset aborts startup.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	entries, err := enrich.LoadCompanies(cfg.Companies.DatasetPath)
	if err != nil {
		return nil, fmt.Errorf("load company dataset: %w", err)
	}
	matcher := enrich.NewMatcher(entries, enrich.MatcherOptions{
		MatchThreshold:   cfg.Companies.MatchThreshold,
		PartialThreshold: cfg.Companies.PartialThreshold,
		Blacklist:        cfg.Companies.Blacklist,
	})
	stage := enrich.NewStage(matcher, enrich.NewClassifier(nil))

	registry, configFailures := buildRegistry(cfg.Sources, baseLogger)

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	store := storage.NewPostgresStore(db)

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Registry:       registry,
		Enricher:       stage,
		Store:          store,
		ConfigFailures: configFailures,
		Timeout:        cfg.Collection.Timeout(),
		Logger:         baseLogger.With("component", "pipeline"),
	})

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		db:       db,
		store:    store,
		pipeline: pipeline,
	}, nil
}

// buildRegistry turns source configs into registered collectors. Invalid
// sources are collected separately rather than aborting their siblings.
func buildRegistry(sources []config.SourceConfig, logger *slog.Logger) (*collector.Registry, map[string]string) {
	registry := collector.NewRegistry()
	failures := map[string]string{}

	for _, src := range sources {
		strategy, err := source.BuildStrategy(src)
		if err != nil {
			id := src.ID
			if id == "" {
				id = "unnamed"
			}
			logger.Error("source configuration rejected", "source", id, "error", err)
			failures[id] = err.Error()
			continue
		}

		fetcher := fetch.New(nil, fetch.Options{
			Delay:      src.RateLimitDelay(),
			Timeout:    src.Timeout(),
			MaxRetries: src.MaxRetries,
			Headers:    src.Headers,
		}, logger.With("component", "fetch", "source", src.ID))

		registry.Register(collector.New(
			src.ID, strategy, fetcher, src.PageCeiling(), src.Enabled,
			logger.With("component", "collector", "source", src.ID)))
	}

	return registry, failures
}

// InitSchema creates the database tables and indexes if they do not exist.
func (a *Application) InitSchema(ctx context.Context) error {
	return a.store.EnsureSchema(ctx)
}

// Run performs a single ingestion pass. sourceID empty means all sources.
func (a *Application) Run(ctx context.Context, sourceID string) (domain.RunSummary, error) {
	return a.pipeline.Run(ctx, sourceID)
}

// SweepStaleRuns closes ingestion runs abandoned by crashed processes.
func (a *Application) SweepStaleRuns(ctx context.Context, staleAfter time.Duration) (int, error) {
	sweeper := usecase.NewMaintenance(a.store, staleAfter, a.logger.With("component", "maintenance"))
	return sweeper.SweepStaleRuns(ctx)
}

// Metrics returns aggregate audit counters from the store.
func (a *Application) Metrics(ctx context.Context) (domain.StoreMetrics, error) {
	return a.store.Metrics(ctx)
}

// Close releases the database handle.
func (a *Application) Close() error {
	return a.db.Close()
}
