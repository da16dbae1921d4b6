package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"MedMonitor/internal/domain"
)

func TestStageEnrich(t *testing.T) {
	t.Parallel()

	stage := NewStage(newTestMatcher(MatcherOptions{}), NewClassifier(nil))

	record := domain.RawRecord{
		SourceID: "cninfo-announcements",
		Title:    "迈瑞医疗2026年年报",
		URL:      "https://example.cn/a/1",
	}

	enriched := stage.Enrich(record)
	assert.Equal(t, []string{"迈瑞医疗"}, enriched.Companies)
	assert.Equal(t, domain.CategoryFinancialReports, enriched.Category)
	assert.False(t, enriched.ScrapedAt.IsZero())
	assert.Equal(t, time.UTC, enriched.ScrapedAt.Location())
	assert.Equal(t, record.URL, enriched.URL)
}

func TestStageEnrichWithoutComponents(t *testing.T) {
	t.Parallel()

	stage := NewStage(nil, nil)
	enriched := stage.Enrich(domain.RawRecord{Title: "无从判断", URL: "https://example.cn/a/2"})

	assert.Empty(t, enriched.Companies)
	assert.Equal(t, domain.CategoryUnknown, enriched.Category)
}
