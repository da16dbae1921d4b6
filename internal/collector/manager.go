package collector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"MedMonitor/internal/domain"
)

// Manager runs registered collectors concurrently with per-collector failure
// isolation. Each collector writes into its own result slot; slots are merged
// only after every goroutine has joined, so no shared list is written from
// two collectors at once.
type Manager struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewManager builds a manager over the registry. timeout <= 0 disables the
// overall deadline; external cancellation via ctx still applies.
func NewManager(registry *Registry, timeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{registry: registry, timeout: timeout, logger: logger}
}

// CollectAll executes every registered collector and aggregates the outcome.
// A failure in one collector never aborts its siblings; all goroutines are
// joined before the call returns. Cancelled collectors still contribute the
// records they yielded before the cancellation.
func (m *Manager) CollectAll(ctx context.Context) domain.ManagerResult {
	collectors := m.registry.All()

	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	m.debug("starting collection", "collectors", len(collectors))

	slots := make([]domain.CollectResult, len(collectors))
	var group errgroup.Group
	for i, col := range collectors {
		group.Go(func() error {
			slots[i] = m.runOne(ctx, col)
			return nil
		})
	}
	_ = group.Wait()

	result := domain.ManagerResult{
		PerSource: make(map[string]domain.CollectorStats, len(collectors)),
	}
	for _, slot := range slots {
		result.Records = append(result.Records, slot.Records...)
		result.PerSource[slot.Stats.SourceID] = slot.Stats
		if slot.Stats.Outcome == domain.OutcomeFailed {
			result.FailedSources = append(result.FailedSources, slot.Stats.SourceID)
		}
	}
	sort.Strings(result.FailedSources)

	// Stable presentation order; correctness does not depend on it.
	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].PublishDate.After(result.Records[j].PublishDate)
	})

	m.debug("collection finished",
		"records", len(result.Records),
		"failed_sources", len(result.FailedSources))
	return result
}

// runOne shields the manager from a panicking collector; the panic becomes a
// failed stats entry for that source only.
func (m *Manager) runOne(ctx context.Context, col *Collector) (result domain.CollectResult) {
	defer func() {
		if r := recover(); r != nil {
			if m.logger != nil {
				m.logger.Error("collector panicked", "source", col.SourceID(), "panic", r)
			}
			result = domain.CollectResult{Stats: domain.CollectorStats{
				SourceID: col.SourceID(),
				Outcome:  domain.OutcomeFailed,
				Errors:   []string{fmt.Sprintf("panic: %v", r)},
			}}
		}
	}()
	return col.Collect(ctx)
}

func (m *Manager) debug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
