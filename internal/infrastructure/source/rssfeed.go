package source

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"

	"MedMonitor/internal/collector"
	"MedMonitor/internal/config"
	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// RSSAdapter reads one RSS/Atom feed. A feed is a single logical page.
type RSSAdapter struct {
	sourceID   string
	sourceType domain.SourceType
	region     string
	cfg        config.EndpointConfig
	parser     *gofeed.Parser
}

var _ collector.Adapter = (*RSSAdapter)(nil)

// NewRSSAdapter builds a feed adapter for the configured endpoint.
func NewRSSAdapter(sourceID string, sourceType domain.SourceType, region string, cfg config.EndpointConfig) *RSSAdapter {
	if sourceType == "" {
		sourceType = domain.SourceIndustryMedia
	}
	return &RSSAdapter{
		sourceID:   sourceID,
		sourceType: sourceType,
		region:     region,
		cfg:        cfg,
		parser:     gofeed.NewParser(),
	}
}

// SourceID identifies the originating collector on every record.
func (a *RSSAdapter) SourceID() string { return a.sourceID }

// FirstPage returns 1; feeds are not paginated.
func (a *RSSAdapter) FirstPage() int { return 1 }

// FetchPage fetches and parses the feed. HasMore is always false.
func (a *RSSAdapter) FetchPage(ctx context.Context, fetcher ports.Fetcher, _ int) (collector.PageResult, error) {
	resp, err := fetcher.Fetch(ctx, ports.FetchRequest{URL: a.cfg.URL, Params: a.cfg.Params})
	if err != nil {
		return collector.PageResult{}, err
	}

	feed, err := a.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return collector.PageResult{}, fmt.Errorf("%w: %v", collector.ErrParse, err)
	}

	records := make([]domain.RawRecord, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil || item.Title == "" || item.Link == "" {
			continue
		}
		absolute, err := AbsoluteURL(a.cfg.BaseURL, item.Link)
		if err != nil {
			continue
		}

		record := domain.RawRecord{
			SourceID:    a.sourceID,
			SourceType:  a.sourceType,
			Title:       item.Title,
			Summary:     item.Description,
			ContentHTML: SanitizeHTML(item.Content),
			URL:         absolute,
			Region:      a.region,
		}
		record.PublishDate = feedItemDate(item)
		if len(item.Categories) > 0 {
			record.Metadata = map[string]any{"feed_categories": item.Categories}
		}
		records = append(records, record)
	}

	return collector.PageResult{Records: records, HasMore: false}, nil
}

func feedItemDate(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC()
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC()
	}
	return time.Time{}
}
