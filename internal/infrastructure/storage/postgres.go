package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// Schema for the records and audit tables. url_hash carries the unique
// constraint that serializes concurrent inserts for the same URL at the
// storage layer.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    id            BIGSERIAL PRIMARY KEY,
    source        TEXT NOT NULL,
    source_type   TEXT,
    category      TEXT,
    companies     TEXT[] NOT NULL DEFAULT '{}',
    title         TEXT,
    summary       TEXT,
    content_html  TEXT,
    publish_date  TIMESTAMPTZ,
    url           TEXT NOT NULL,
    url_hash      TEXT NOT NULL UNIQUE,
    content_hash  TEXT NOT NULL,
    region        TEXT,
    metadata      JSONB,
    scraped_at    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_records_publish_date ON records (publish_date);
CREATE INDEX IF NOT EXISTS idx_records_category ON records (category);
CREATE INDEX IF NOT EXISTS idx_records_source ON records (source);
CREATE INDEX IF NOT EXISTS idx_records_content_hash ON records (content_hash);

CREATE TABLE IF NOT EXISTS ingestion_runs (
    id                BIGSERIAL PRIMARY KEY,
    run_key           TEXT NOT NULL,
    source            TEXT NOT NULL,
    started_at        TIMESTAMPTZ NOT NULL,
    completed_at      TIMESTAMPTZ,
    status            TEXT NOT NULL DEFAULT 'running',
    total_processed   INTEGER NOT NULL DEFAULT 0,
    new_records       INTEGER NOT NULL DEFAULT 0,
    updated_records   INTEGER NOT NULL DEFAULT 0,
    duplicate_records INTEGER NOT NULL DEFAULT 0,
    error_metadata    TEXT
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON ingestion_runs (started_at);
CREATE INDEX IF NOT EXISTS idx_runs_status ON ingestion_runs (status);
`

// PostgresStore persists enriched records with content-addressed
// deduplication and keeps the ingestion-run audit trail.
type PostgresStore struct {
	db  *sql.DB
	sq  sq.StatementBuilderType
	now func() time.Time
}

var _ ports.RecordStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:  db,
		sq:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now: time.Now,
	}
}

// EnsureSchema creates the tables and indexes if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Insert applies the dedup policy for one enriched record inside a single
// transaction and increments the run counters for the resolved outcome.
func (s *PostgresStore) Insert(ctx context.Context, record domain.EnrichedRecord, runID int64) (domain.InsertOutcome, error) {
	if record.URL == "" {
		return "", fmt.Errorf("insert record: url is required")
	}
	if record.SourceID == "" {
		return "", fmt.Errorf("insert record: source is required")
	}

	urlHash := URLHash(record.URL)
	contentHash := ContentHash(record.Title, record.Summary, record.ContentHTML)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin insert tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	outcome, err := s.insertInTx(ctx, tx, record, urlHash, contentHash)
	if err != nil {
		return "", err
	}

	if runID != 0 {
		if err := s.incrementRun(ctx, tx, runID, outcome); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit insert tx: %w", err)
	}
	return outcome, nil
}

func (s *PostgresStore) insertInTx(ctx context.Context, tx *sql.Tx, record domain.EnrichedRecord, urlHash, contentHash string) (domain.InsertOutcome, error) {
	existingID, existingContentHash, found, err := s.lockByURLHash(ctx, tx, urlHash)
	if err != nil {
		return "", err
	}

	contentSeenElsewhere := false
	var contentMatchID int64
	if !found {
		contentMatchID, contentSeenElsewhere, err = s.findByContentHash(ctx, tx, contentHash)
		if err != nil {
			return "", err
		}
	}

	now := s.now().UTC()
	outcome := Decide(found, existingContentHash, contentHash, contentSeenElsewhere)

	switch outcome {
	case domain.OutcomeUpdated:
		err = s.updateRow(ctx, tx, existingID, record, contentHash, now)
	case domain.OutcomeDuplicate:
		targetID := existingID
		if !found {
			targetID = contentMatchID
		}
		err = s.refreshRow(ctx, tx, targetID, record, now)
	case domain.OutcomeInserted:
		var inserted bool
		inserted, err = s.insertRow(ctx, tx, record, urlHash, contentHash, now)
		if err == nil && !inserted {
			// Lost a race on the url_hash unique constraint; re-read the
			// winner's row and resolve against it.
			existingID, existingContentHash, _, err = s.lockByURLHash(ctx, tx, urlHash)
			if err != nil {
				return "", err
			}
			outcome = Decide(true, existingContentHash, contentHash, false)
			if outcome == domain.OutcomeUpdated {
				err = s.updateRow(ctx, tx, existingID, record, contentHash, now)
			} else {
				err = s.refreshRow(ctx, tx, existingID, record, now)
			}
		}
	}
	if err != nil {
		return "", err
	}
	return outcome, nil
}

func (s *PostgresStore) lockByURLHash(ctx context.Context, tx *sql.Tx, urlHash string) (int64, string, bool, error) {
	query := s.sq.
		Select("id", "content_hash").
		From("records").
		Where(sq.Eq{"url_hash": urlHash}).
		Suffix("FOR UPDATE")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, "", false, fmt.Errorf("build url lookup: %w", err)
	}

	var id int64
	var contentHash string
	err = tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id, &contentHash)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, fmt.Errorf("lookup by url hash: %w", err)
	}
	return id, contentHash, true, nil
}

func (s *PostgresStore) findByContentHash(ctx context.Context, tx *sql.Tx, contentHash string) (int64, bool, error) {
	query := s.sq.
		Select("id").
		From("records").
		Where(sq.Eq{"content_hash": contentHash}).
		OrderBy("id").
		Limit(1)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build content lookup: %w", err)
	}

	var id int64
	err = tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup by content hash: %w", err)
	}
	return id, true, nil
}

func (s *PostgresStore) insertRow(ctx context.Context, tx *sql.Tx, record domain.EnrichedRecord, urlHash, contentHash string, now time.Time) (bool, error) {
	metadata, err := metadataJSON(record.Metadata)
	if err != nil {
		return false, err
	}

	query := s.sq.
		Insert("records").
		SetMap(sq.Eq{
			"source":       record.SourceID,
			"source_type":  string(record.SourceType),
			"category":     string(record.Category),
			"companies":    pq.Array(record.Companies),
			"title":        record.Title,
			"summary":      record.Summary,
			"content_html": record.ContentHTML,
			"publish_date": nullableTime(record.PublishDate),
			"url":          record.URL,
			"url_hash":     urlHash,
			"content_hash": contentHash,
			"region":       record.Region,
			"metadata":     metadata,
			"scraped_at":   record.ScrapedAt,
			"created_at":   now,
			"updated_at":   now,
		}).
		Suffix("ON CONFLICT (url_hash) DO NOTHING")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) updateRow(ctx context.Context, tx *sql.Tx, id int64, record domain.EnrichedRecord, contentHash string, now time.Time) error {
	metadata, err := metadataJSON(record.Metadata)
	if err != nil {
		return err
	}

	query := s.sq.
		Update("records").
		SetMap(sq.Eq{
			"source":       record.SourceID,
			"source_type":  string(record.SourceType),
			"category":     string(record.Category),
			"companies":    pq.Array(record.Companies),
			"title":        record.Title,
			"summary":      record.Summary,
			"content_html": record.ContentHTML,
			"publish_date": nullableTime(record.PublishDate),
			"region":       record.Region,
			"metadata":     metadata,
			"content_hash": contentHash,
			"scraped_at":   record.ScrapedAt,
			"updated_at":   now,
		}).
		Where(sq.Eq{"id": id})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

// refreshRow acknowledges a duplicate sighting without rewriting content.
func (s *PostgresStore) refreshRow(ctx context.Context, tx *sql.Tx, id int64, record domain.EnrichedRecord, now time.Time) error {
	update := sq.Eq{
		"scraped_at": record.ScrapedAt,
		"updated_at": now,
	}
	if len(record.Metadata) > 0 {
		metadata, err := metadataJSON(record.Metadata)
		if err != nil {
			return err
		}
		update["metadata"] = metadata
	}

	query := s.sq.Update("records").SetMap(update).Where(sq.Eq{"id": id})
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build refresh: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("refresh record: %w", err)
	}
	return nil
}

// StartIngestionRun opens the audit row for one collection attempt.
func (s *PostgresStore) StartIngestionRun(ctx context.Context, sourceID string) (domain.IngestionRun, error) {
	if sourceID == "" {
		sourceID = "all"
	}
	run := domain.IngestionRun{
		RunKey:    uuid.NewString(),
		SourceID:  sourceID,
		StartedAt: s.now().UTC(),
		Status:    domain.RunRunning,
	}

	query := s.sq.
		Insert("ingestion_runs").
		SetMap(sq.Eq{
			"run_key":    run.RunKey,
			"source":     run.SourceID,
			"started_at": run.StartedAt,
			"status":     string(run.Status),
		}).
		Suffix("RETURNING id")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return domain.IngestionRun{}, fmt.Errorf("build run insert: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&run.ID); err != nil {
		return domain.IngestionRun{}, fmt.Errorf("start ingestion run: %w", err)
	}
	return run, nil
}

// CompleteIngestionRun closes the audit row exactly once.
func (s *PostgresStore) CompleteIngestionRun(ctx context.Context, runID int64, status domain.RunStatus, errorMetadata string) error {
	update := sq.Eq{
		"status":       string(status),
		"completed_at": s.now().UTC(),
	}
	if errorMetadata != "" {
		update["error_metadata"] = errorMetadata
	}

	query := s.sq.
		Update("ingestion_runs").
		SetMap(update).
		Where(sq.Eq{"id": runID, "completed_at": nil})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build run completion: %w", err)
	}

	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("complete ingestion run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete ingestion run: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ingestion run %d is unknown or already closed", runID)
	}
	return nil
}

func (s *PostgresStore) incrementRun(ctx context.Context, tx *sql.Tx, runID int64, outcome domain.InsertOutcome) error {
	column := ""
	switch outcome {
	case domain.OutcomeInserted:
		column = "new_records"
	case domain.OutcomeUpdated:
		column = "updated_records"
	case domain.OutcomeDuplicate:
		column = "duplicate_records"
	default:
		return fmt.Errorf("unknown insert outcome %q", outcome)
	}

	query := s.sq.
		Update("ingestion_runs").
		Set("total_processed", sq.Expr("total_processed + 1")).
		Set(column, sq.Expr(column+" + 1")).
		Where(sq.Eq{"id": runID})

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build run increment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("increment ingestion run: %w", err)
	}
	return nil
}

// Metrics returns the aggregate audit counters for external monitoring.
func (s *PostgresStore) Metrics(ctx context.Context) (domain.StoreMetrics, error) {
	query := s.sq.
		Select(
			"COUNT(*)",
			"COALESCE(SUM(total_processed), 0)",
			"COALESCE(SUM(new_records), 0)",
			"COALESCE(SUM(duplicate_records), 0)",
		).
		From("ingestion_runs")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return domain.StoreMetrics{}, fmt.Errorf("build metrics query: %w", err)
	}

	var metrics domain.StoreMetrics
	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&metrics.TotalRuns,
		&metrics.RecordsProcessed,
		&metrics.NewRecords,
		&metrics.DuplicateRecords,
	)
	if err != nil {
		return domain.StoreMetrics{}, fmt.Errorf("query metrics: %w", err)
	}
	return metrics, nil
}

// StaleRuns lists runs still marked running past the threshold, the
// recognized leftover of a process crash.
func (s *PostgresStore) StaleRuns(ctx context.Context, olderThan time.Duration) ([]domain.IngestionRun, error) {
	cutoff := s.now().UTC().Add(-olderThan)

	query := s.sq.
		Select("id", "run_key", "source", "started_at", "status").
		From("ingestion_runs").
		Where(sq.Eq{"status": string(domain.RunRunning), "completed_at": nil}).
		Where(sq.Lt{"started_at": cutoff}).
		OrderBy("started_at")

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale runs query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale runs: %w", err)
	}
	defer rows.Close()

	var stale []domain.IngestionRun
	for rows.Next() {
		var run domain.IngestionRun
		var status string
		if err := rows.Scan(&run.ID, &run.RunKey, &run.SourceID, &run.StartedAt, &status); err != nil {
			return nil, fmt.Errorf("scan stale run: %w", err)
		}
		run.Status = domain.RunStatus(status)
		stale = append(stale, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stale runs: %w", err)
	}
	return stale, nil
}

func metadataJSON(metadata map[string]any) (any, error) {
	if len(metadata) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return raw, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
