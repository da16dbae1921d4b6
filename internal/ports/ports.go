package ports

import (
	"context"
	"time"

	"MedMonitor/internal/domain"
)

// FetchRequest describes one page request issued by a collector.
type FetchRequest struct {
	URL     string
	Params  map[string]string
	Headers map[string]string
}

// FetchResponse is the successful result of a fetch, body fully read.
type FetchResponse struct {
	StatusCode int
	Body       []byte
	FinalURL   string
}

// Fetcher performs HTTP GETs with per-source rate limiting and a bounded
// retry budget. Implementations block the caller to enforce the delay.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error)
}

// Enricher annotates a raw record with companies and a category. Must be
// deterministic and safe for concurrent use.
type Enricher interface {
	Enrich(record domain.RawRecord) domain.EnrichedRecord
}

// RecordStore persists enriched records with content-addressed deduplication
// and keeps the ingestion-run audit trail. Insert is atomic per call.
type RecordStore interface {
	Insert(ctx context.Context, record domain.EnrichedRecord, runID int64) (domain.InsertOutcome, error)
	StartIngestionRun(ctx context.Context, sourceID string) (domain.IngestionRun, error)
	CompleteIngestionRun(ctx context.Context, runID int64, status domain.RunStatus, errorMetadata string) error
	Metrics(ctx context.Context) (domain.StoreMetrics, error)
	StaleRuns(ctx context.Context, olderThan time.Duration) ([]domain.IngestionRun, error)
}

// CompanyMatcher resolves canonical company names mentioned in text fields.
type CompanyMatcher interface {
	Match(title, summary, content string, metadata map[string]any) []string
}

// Classifier assigns a digest category from source and textual cues.
type Classifier interface {
	Classify(sourceID string, title, summary, content string, metadata map[string]any) domain.Category
}
