package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// defaultStaleAfter bounds how long a run may stay open before a crashed
// process is assumed.
const defaultStaleAfter = 24 * time.Hour

// Maintenance closes ingestion runs left open by crashed or killed
// processes, so the audit trail never reports them as still running.
type Maintenance struct {
	store      ports.RecordStore
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewMaintenance builds a sweeper over the store. staleAfter <= 0 falls back
// to the default threshold.
func NewMaintenance(store ports.RecordStore, staleAfter time.Duration, logger *slog.Logger) *Maintenance {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Maintenance{store: store, staleAfter: staleAfter, logger: logger}
}

// SweepStaleRuns marks every run open longer than the threshold as failed
// and reports how many were closed. A run already closed by a racing process
// is skipped, not an error.
func (m *Maintenance) SweepStaleRuns(ctx context.Context) (int, error) {
	stale, err := m.store.StaleRuns(ctx, m.staleAfter)
	if err != nil {
		return 0, fmt.Errorf("list stale runs: %w", err)
	}

	closed := 0
	for _, run := range stale {
		reason := fmt.Sprintf("abandoned: still running after %s", m.staleAfter)
		if err := m.store.CompleteIngestionRun(ctx, run.ID, domain.RunFailed, reason); err != nil {
			if m.logger != nil {
				m.logger.Warn("stale run already closed", "run_id", run.ID, "error", err)
			}
			continue
		}
		closed++
		if m.logger != nil {
			m.logger.Info("closed stale ingestion run",
				"run_id", run.ID, "run_key", run.RunKey, "started_at", run.StartedAt)
		}
	}
	return closed, nil
}
