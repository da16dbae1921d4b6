package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// ErrParse marks a page whose payload could not be decoded. It is terminal
// for the current adapter and activates the fallback strategy when one is
// configured.
var ErrParse = errors.New("malformed page payload")

// PageResult is the output of one page request: zero or more records plus a
// more-pages signal.
type PageResult struct {
	Records []domain.RawRecord
	HasMore bool
}

// Adapter turns one page request into candidate records. Implementations own
// the pagination convention (zero-based, one-based, query-param) and must
// emit absolute scheme-qualified URLs and UTC publish dates.
type Adapter interface {
	SourceID() string
	FirstPage() int
	FetchPage(ctx context.Context, fetcher ports.Fetcher, page int) (PageResult, error)
}

// Strategy pairs a primary adapter with an optional fallback. Both steps
// share the RawRecord output contract, so downstream stages are
// fallback-agnostic.
type Strategy struct {
	Primary  Adapter
	Fallback Adapter
}

// Collector drives one strategy through pagination. Pages are requested in
// strictly increasing order and never re-requested within one attempt; a
// collector is re-invokable per attempt but not resumable mid-attempt.
type Collector struct {
	sourceID string
	strategy Strategy
	fetcher  ports.Fetcher
	maxPages int
	enabled  bool
	logger   *slog.Logger
}

// New builds a collector for one source. maxPages <= 0 means no ceiling.
func New(sourceID string, strategy Strategy, fetcher ports.Fetcher, maxPages int, enabled bool, logger *slog.Logger) *Collector {
	return &Collector{
		sourceID: sourceID,
		strategy: strategy,
		fetcher:  fetcher,
		maxPages: maxPages,
		enabled:  enabled,
		logger:   logger,
	}
}

// SourceID identifies the collector inside the registry and the audit trail.
func (c *Collector) SourceID() string { return c.sourceID }

// Enabled reports whether the source is configured to run.
func (c *Collector) Enabled() bool { return c.enabled }

// Collect executes one collection attempt. A primary failure after retries
// consults the fallback; records already yielded from successful pages are
// preserved and reported as a partial success. Cancellation ends the attempt
// as failed but keeps the records collected so far.
func (c *Collector) Collect(ctx context.Context) domain.CollectResult {
	stats := domain.CollectorStats{SourceID: c.sourceID}

	if !c.enabled {
		stats.Outcome = domain.OutcomeSkipped
		return domain.CollectResult{Stats: stats}
	}

	records, err := c.paginate(ctx, c.strategy.Primary, &stats)
	if err == nil {
		stats.Outcome = domain.OutcomeSucceeded
		return c.finish(records, stats)
	}

	stats.Errors = append(stats.Errors, fmt.Sprintf("primary: %v", err))
	if ctx.Err() != nil || c.strategy.Fallback == nil {
		stats.Outcome = outcomeAfterFailure(ctx, records)
		return c.finish(records, stats)
	}

	c.debug("primary exhausted, switching to fallback", "source", c.sourceID, "error", err)
	stats.UsedFallback = true

	fallbackRecords, fbErr := c.paginate(ctx, c.strategy.Fallback, &stats)
	records = append(records, fallbackRecords...)
	if fbErr != nil {
		stats.Errors = append(stats.Errors, fmt.Sprintf("fallback: %v", fbErr))
		stats.Outcome = outcomeAfterFailure(ctx, records)
		return c.finish(records, stats)
	}

	// The attempt recovered via fallback but the primary error stays on
	// record, so the run summary still surfaces it.
	stats.Outcome = domain.OutcomePartiallySucceeded
	return c.finish(records, stats)
}

func (c *Collector) paginate(ctx context.Context, adapter Adapter, stats *domain.CollectorStats) ([]domain.RawRecord, error) {
	var collected []domain.RawRecord

	page := adapter.FirstPage()
	for fetched := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return collected, fmt.Errorf("cancelled: %w", err)
		}

		result, err := adapter.FetchPage(ctx, c.fetcher, page)
		if err != nil {
			return collected, fmt.Errorf("page %d: %w", page, err)
		}

		stats.PagesFetched++
		fetched++
		collected = append(collected, result.Records...)

		if !result.HasMore {
			break
		}
		if c.maxPages > 0 && fetched >= c.maxPages {
			c.debug("max pages reached", "source", c.sourceID, "pages", fetched)
			break
		}
	}

	return collected, nil
}

// finish deduplicates by URL within the attempt and stamps the source id on
// records that left the adapter without one.
func (c *Collector) finish(records []domain.RawRecord, stats domain.CollectorStats) domain.CollectResult {
	seen := make(map[string]struct{}, len(records))
	unique := records[:0]
	for _, record := range records {
		if record.SourceID == "" {
			record.SourceID = c.sourceID
		}
		if _, ok := seen[record.URL]; ok {
			continue
		}
		seen[record.URL] = struct{}{}
		unique = append(unique, record)
	}

	stats.RecordsYielded = len(unique)
	return domain.CollectResult{Records: unique, Stats: stats}
}

// outcomeAfterFailure grades a failed attempt. Cancellation always reads as
// failed so a truncated run lands in failed_sources even when pages arrived
// before the deadline; any other mid-pagination failure that yielded records
// is a partial success.
func outcomeAfterFailure(ctx context.Context, records []domain.RawRecord) domain.CollectOutcome {
	if ctx.Err() == nil && len(records) > 0 {
		return domain.OutcomePartiallySucceeded
	}
	return domain.OutcomeFailed
}

func (c *Collector) debug(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
