package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MedMonitor/internal/domain"
)

func (s *memoryStore) addOpenRun(id int64, startedAt time.Time) {
	s.runs[id] = &domain.IngestionRun{
		ID:        id,
		RunKey:    "stale",
		StartedAt: startedAt,
		Status:    domain.RunRunning,
	}
}

func (s *memoryStore) staleOverride(olderThan time.Duration) []domain.IngestionRun {
	cutoff := time.Now().Add(-olderThan)
	var out []domain.IngestionRun
	for _, run := range s.runs {
		if run.CompletedAt == nil && run.StartedAt.Before(cutoff) {
			out = append(out, *run)
		}
	}
	return out
}

// staleAwareStore gives the memory store a working StaleRuns.
type staleAwareStore struct{ *memoryStore }

func (s staleAwareStore) StaleRuns(_ context.Context, olderThan time.Duration) ([]domain.IngestionRun, error) {
	return s.staleOverride(olderThan), nil
}

func TestSweepStaleRuns(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.addOpenRun(1, time.Now().Add(-48*time.Hour))
	store.addOpenRun(2, time.Now().Add(-time.Minute))

	sweeper := NewMaintenance(staleAwareStore{store}, 24*time.Hour, nil)

	closed, err := sweeper.SweepStaleRuns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	assert.Equal(t, domain.RunFailed, store.runs[1].Status)
	assert.NotNil(t, store.runs[1].CompletedAt)
	assert.Contains(t, store.runs[1].ErrorMetadata, "abandoned")

	assert.Equal(t, domain.RunRunning, store.runs[2].Status, "recent runs stay open")
}

func TestSweepStaleRunsNothingToDo(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	sweeper := NewMaintenance(staleAwareStore{store}, 0, nil)

	closed, err := sweeper.SweepStaleRuns(context.Background())
	require.NoError(t, err)
	assert.Zero(t, closed)
}
