package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"MedMonitor/internal/collector"
	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Registry *collector.Registry
	Enricher ports.Enricher
	Store    ports.RecordStore
	// ConfigFailures lists sources dropped at startup because their
	// configuration did not validate; they count as failed in the summary.
	ConfigFailures map[string]string
	Timeout        time.Duration
	Logger         *slog.Logger
}

// Pipeline implements the collect-enrich-persist ingestion workflow.
type Pipeline struct {
	registry       *collector.Registry
	enricher       ports.Enricher
	store          ports.RecordStore
	configFailures map[string]string
	timeout        time.Duration
	logger         *slog.Logger
	now            func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		registry:       deps.Registry,
		enricher:       deps.Enricher,
		store:          deps.Store,
		configFailures: deps.ConfigFailures,
		timeout:        deps.Timeout,
		logger:         deps.Logger,
		now:            time.Now,
	}
}

// Run executes one ingestion pass. sourceID narrows the run to a single
// source; empty means every registered source. Collector failures are
// isolated per source and never abort the run; a store failure does, with
// the open audit row closed as failed. The returned summary is complete
// even when err is non-nil.
func (p *Pipeline) Run(ctx context.Context, sourceID string) (domain.RunSummary, error) {
	registry := p.registry
	runScope := "all"
	if sourceID != "" {
		col, err := p.registry.Resolve(sourceID)
		if err != nil {
			summary := domain.RunSummary{
				Status:      domain.RunFailed,
				StartedAt:   p.now().UTC(),
				CompletedAt: p.now().UTC(),
				Errors:      []string{err.Error()},
			}
			return summary, err
		}
		registry = collector.NewRegistry()
		registry.Register(col)
		runScope = sourceID
	}

	run, err := p.store.StartIngestionRun(ctx, runScope)
	if err != nil {
		err = fmt.Errorf("start ingestion run: %w", err)
		summary := domain.RunSummary{
			Status:      domain.RunFailed,
			StartedAt:   p.now().UTC(),
			CompletedAt: p.now().UTC(),
			Errors:      []string{err.Error()},
		}
		return summary, err
	}

	summary := domain.RunSummary{
		RunID:     run.ID,
		RunKey:    run.RunKey,
		StartedAt: run.StartedAt,
	}

	manager := collector.NewManager(registry, p.timeout, p.logger)
	result := manager.CollectAll(ctx)

	summary.TotalSources = len(registry.All())
	summary.FailedSources = append(summary.FailedSources, result.FailedSources...)
	summary.TotalRecordsCollected = len(result.Records)
	sourceIDs := make([]string, 0, len(result.PerSource))
	for id := range result.PerSource {
		sourceIDs = append(sourceIDs, id)
	}
	sort.Strings(sourceIDs)
	for _, id := range sourceIDs {
		stats := result.PerSource[id]
		switch stats.Outcome {
		case domain.OutcomeSucceeded, domain.OutcomePartiallySucceeded:
			summary.SuccessfulSources++
		}
		// Partial successes stay out of failed_sources, so their errors
		// must surface here or the scheduler never learns the primary
		// path is broken.
		for _, msg := range stats.Errors {
			p.warn("collector error", "source", id, "error", msg)
			summary.Errors = append(summary.Errors, fmt.Sprintf("source %s: %s", id, msg))
		}
	}
	if sourceID == "" {
		// Sources rejected at startup still count against the whole-fleet run.
		summary.TotalSources += len(p.configFailures)
		ids := make([]string, 0, len(p.configFailures))
		for id := range p.configFailures {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			summary.FailedSources = append(summary.FailedSources, id)
			summary.Errors = append(summary.Errors, fmt.Sprintf("source %s: %s", id, p.configFailures[id]))
		}
	}
	sort.Strings(summary.FailedSources)

	storeErr := p.persist(ctx, result.Records, run.ID, &summary)

	status := domain.RunCompleted
	errorMetadata := ""
	if storeErr != nil {
		status = domain.RunFailed
		errorMetadata = storeErr.Error()
		summary.Status = domain.RunFailed
		summary.Errors = append(summary.Errors, storeErr.Error())
	} else {
		summary.Status = domain.RunCompleted
	}

	if err := p.store.CompleteIngestionRun(ctx, run.ID, status, errorMetadata); err != nil {
		err = fmt.Errorf("complete ingestion run: %w", err)
		summary.Status = domain.RunFailed
		summary.Errors = append(summary.Errors, err.Error())
		if storeErr == nil {
			storeErr = err
		}
	}
	summary.CompletedAt = p.now().UTC()

	p.info("ingestion run finished",
		"run_id", summary.RunID,
		"status", summary.Status,
		"collected", summary.TotalRecordsCollected,
		"inserted", summary.RecordsInserted,
		"updated", summary.RecordsUpdated,
		"duplicate", summary.RecordsDuplicate,
		"failed_sources", len(summary.FailedSources))

	return summary, storeErr
}

// persist enriches and stores every collected record, accumulating outcome
// counters. The first store error aborts the loop; later records stay
// unpersisted so the next run can pick them up.
func (p *Pipeline) persist(ctx context.Context, records []domain.RawRecord, runID int64, summary *domain.RunSummary) error {
	for _, raw := range records {
		enriched := p.enricher.Enrich(raw)
		outcome, err := p.store.Insert(ctx, enriched, runID)
		if err != nil {
			return fmt.Errorf("insert record %s: %w", raw.URL, err)
		}
		switch outcome {
		case domain.OutcomeInserted:
			summary.RecordsInserted++
		case domain.OutcomeUpdated:
			summary.RecordsUpdated++
		case domain.OutcomeDuplicate:
			summary.RecordsDuplicate++
		}
	}
	return nil
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
