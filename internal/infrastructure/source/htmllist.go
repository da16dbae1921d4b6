package source

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"MedMonitor/internal/collector"
	"MedMonitor/internal/config"
	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// HTMLListAdapter walks paginated HTML listings, extracting one record per
// item-selector match via configured CSS selectors.
type HTMLListAdapter struct {
	sourceID   string
	sourceType domain.SourceType
	region     string
	pageSize   int
	cfg        config.EndpointConfig
	location   *time.Location
}

var _ collector.Adapter = (*HTMLListAdapter)(nil)

// NewHTMLListAdapter validates the endpoint config and resolves its timezone.
func NewHTMLListAdapter(sourceID string, sourceType domain.SourceType, region string, pageSize int, cfg config.EndpointConfig) (*HTMLListAdapter, error) {
	if cfg.ItemSelector == "" {
		return nil, fmt.Errorf("source %s: html endpoint requires itemSelector", sourceID)
	}
	location, err := resolveTimezone(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", sourceID, err)
	}
	return &HTMLListAdapter{
		sourceID:   sourceID,
		sourceType: sourceType,
		region:     region,
		pageSize:   pageSize,
		cfg:        cfg,
		location:   location,
	}, nil
}

// SourceID identifies the originating collector on every record.
func (a *HTMLListAdapter) SourceID() string { return a.sourceID }

// FirstPage returns the source's pagination origin (0- or 1-based).
func (a *HTMLListAdapter) FirstPage() int { return a.cfg.PageStart }

// FetchPage requests one listing page and parses its items. An unparseable
// document is a parse error and terminal for this adapter.
func (a *HTMLListAdapter) FetchPage(ctx context.Context, fetcher ports.Fetcher, page int) (collector.PageResult, error) {
	params := map[string]string{}
	for k, v := range a.cfg.Params {
		params[k] = v
	}
	if a.cfg.PageParam != "" {
		params[a.cfg.PageParam] = strconv.Itoa(page)
	}

	resp, err := fetcher.Fetch(ctx, ports.FetchRequest{
		URL:    expandPageURL(a.cfg.URL, page),
		Params: params,
	})
	if err != nil {
		return collector.PageResult{}, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return collector.PageResult{}, fmt.Errorf("%w: %v", collector.ErrParse, err)
	}

	items := doc.Find(a.cfg.ItemSelector)
	if items.Length() == 0 && page == a.cfg.PageStart {
		// An empty first page means the listing markup changed.
		return collector.PageResult{}, fmt.Errorf("%w: selector %q matched nothing", collector.ErrParse, a.cfg.ItemSelector)
	}

	baseURL := a.cfg.BaseURL
	if baseURL == "" {
		baseURL = resp.FinalURL
	}

	var records []domain.RawRecord
	items.Each(func(_ int, item *goquery.Selection) {
		if record, ok := a.buildRecord(item, baseURL); ok {
			records = append(records, record)
		}
	})

	return collector.PageResult{
		Records: records,
		HasMore: a.pageSize > 0 && items.Length() == a.pageSize,
	}, nil
}

func (a *HTMLListAdapter) buildRecord(item *goquery.Selection, baseURL string) (domain.RawRecord, bool) {
	title := a.extract(item, fieldTitle)
	href := a.extract(item, fieldURL)
	if title == "" || href == "" {
		return domain.RawRecord{}, false
	}

	absolute, err := AbsoluteURL(baseURL, href)
	if err != nil {
		return domain.RawRecord{}, false
	}

	record := domain.RawRecord{
		SourceID:    a.sourceID,
		SourceType:  a.sourceType,
		Title:       title,
		Summary:     a.extract(item, fieldSummary),
		ContentHTML: SanitizeHTML(a.extract(item, fieldContent)),
		URL:         absolute,
		Region:      a.region,
	}
	if region := a.extract(item, fieldRegion); region != "" {
		record.Region = region
	}
	if raw := a.extract(item, fieldPublishDate); raw != "" {
		if parsed, err := NormalizeDate(raw, a.cfg.DateFormats, a.location); err == nil {
			record.PublishDate = parsed
		}
	}

	for key, spec := range a.cfg.Fields {
		if reservedField(key) {
			continue
		}
		value := a.extractSpec(item, spec)
		if value == "" {
			continue
		}
		if record.Metadata == nil {
			record.Metadata = map[string]any{}
		}
		record.Metadata[key] = value
	}

	return record, true
}

func (a *HTMLListAdapter) extract(item *goquery.Selection, key string) string {
	spec, ok := a.cfg.Fields[key]
	if !ok {
		return ""
	}
	return a.extractSpec(item, spec)
}

func (a *HTMLListAdapter) extractSpec(item *goquery.Selection, spec config.FieldSpec) string {
	target := item
	if spec.Selector != "" {
		target = item.Find(spec.Selector).First()
	}
	var value string
	if spec.Attr != "" {
		value, _ = target.Attr(spec.Attr)
	} else {
		value = target.Text()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		value = spec.Default
	}
	return value
}
