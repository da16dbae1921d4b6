package domain

import "time"

// CollectOutcome classifies how a single collection attempt ended.
type CollectOutcome string

const (
	OutcomeSucceeded          CollectOutcome = "succeeded"
	OutcomePartiallySucceeded CollectOutcome = "partially_succeeded"
	OutcomeFailed             CollectOutcome = "failed"
	OutcomeSkipped            CollectOutcome = "skipped"
)

// CollectorStats accumulates per-attempt counters for one collector.
type CollectorStats struct {
	SourceID       string
	Outcome        CollectOutcome
	PagesFetched   int
	RecordsYielded int
	UsedFallback   bool
	Errors         []string
}

// CollectResult is the full output of one collector attempt. Records from
// successfully parsed pages are preserved even when the attempt later fails.
type CollectResult struct {
	Records []RawRecord
	Stats   CollectorStats
}

// ManagerResult aggregates the concurrent execution of all collectors.
type ManagerResult struct {
	Records       []RawRecord
	PerSource     map[string]CollectorStats
	FailedSources []string
}

// InsertOutcome is the store's decision for one enriched record.
type InsertOutcome string

const (
	OutcomeInserted  InsertOutcome = "inserted"
	OutcomeUpdated   InsertOutcome = "updated"
	OutcomeDuplicate InsertOutcome = "duplicate"
)

// RunStatus tracks the lifecycle of an ingestion run audit row.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// IngestionRun is the audit entity for one collection attempt. A run with a
// nil CompletedAt older than a threshold indicates a process crash and is a
// candidate for manual reconciliation.
type IngestionRun struct {
	ID               int64
	RunKey           string
	SourceID         string
	StartedAt        time.Time
	CompletedAt      *time.Time
	Status           RunStatus
	TotalProcessed   int
	NewRecords       int
	UpdatedRecords   int
	DuplicateRecords int
	ErrorMetadata    string
}

// StoreMetrics exposes aggregate audit counters for external monitoring.
type StoreMetrics struct {
	TotalRuns        int64 `json:"total_runs"`
	RecordsProcessed int64 `json:"records_processed"`
	NewRecords       int64 `json:"new_records"`
	DuplicateRecords int64 `json:"duplicate_records"`
}

// RunSummary is the structured result of one pipeline invocation, serialized
// as JSON for the calling scheduler.
type RunSummary struct {
	RunID                 int64     `json:"run_id"`
	RunKey                string    `json:"run_key"`
	Status                RunStatus `json:"status"`
	StartedAt             time.Time `json:"started_at"`
	CompletedAt           time.Time `json:"completed_at"`
	TotalSources          int       `json:"total_sources"`
	SuccessfulSources     int       `json:"successful_sources"`
	FailedSources         []string  `json:"failed_sources"`
	TotalRecordsCollected int       `json:"total_records_collected"`
	RecordsInserted       int       `json:"records_inserted"`
	RecordsUpdated        int       `json:"records_updated"`
	RecordsDuplicate      int       `json:"records_duplicate"`
	Errors                []string  `json:"errors"`
}

// ExitCode maps the summary to the process exit contract: 0 success,
// 1 run-level failure, 2 partial source failure.
func (s RunSummary) ExitCode() int {
	if s.Status == RunFailed {
		return 1
	}
	if len(s.FailedSources) > 0 {
		return 2
	}
	return 0
}
