package enrich

import (
	"time"

	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// Stage annotates raw records with matched companies and a category. It runs
// deterministically before persistence; no partially-enriched record ever
// reaches the store.
type Stage struct {
	matcher    ports.CompanyMatcher
	classifier ports.Classifier
	now        func() time.Time
}

var _ ports.Enricher = (*Stage)(nil)

// NewStage wires the matcher and classifier into one enrichment step.
func NewStage(matcher ports.CompanyMatcher, classifier ports.Classifier) *Stage {
	return &Stage{matcher: matcher, classifier: classifier, now: time.Now}
}

// Enrich builds the immutable enriched form of one record.
func (s *Stage) Enrich(record domain.RawRecord) domain.EnrichedRecord {
	enriched := domain.EnrichedRecord{
		RawRecord: record,
		Category:  domain.CategoryUnknown,
		ScrapedAt: s.now().UTC(),
	}
	if s.matcher != nil {
		enriched.Companies = s.matcher.Match(record.Title, record.Summary, record.ContentHTML, record.Metadata)
	}
	if s.classifier != nil {
		enriched.Category = s.classifier.Classify(record.SourceID, record.Title, record.Summary, record.ContentHTML, record.Metadata)
	}
	return enriched
}
