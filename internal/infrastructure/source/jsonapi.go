package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"MedMonitor/internal/collector"
	"MedMonitor/internal/config"
	"MedMonitor/internal/domain"
	"MedMonitor/internal/ports"
)

// Reserved field keys; any other configured field lands in record metadata.
const (
	fieldTitle       = "title"
	fieldURL         = "url"
	fieldSummary     = "summary"
	fieldContent     = "content"
	fieldPublishDate = "publish_date"
	fieldRegion      = "region"
)

// JSONAPIAdapter pages through a JSON list API using configured dot paths
// for item extraction. Pagination convention (zero- or one-based, query
// param or URL template) comes from the endpoint config.
type JSONAPIAdapter struct {
	sourceID   string
	sourceType domain.SourceType
	region     string
	pageSize   int
	cfg        config.EndpointConfig
	location   *time.Location
}

var _ collector.Adapter = (*JSONAPIAdapter)(nil)

// NewJSONAPIAdapter validates the endpoint config and resolves its timezone.
func NewJSONAPIAdapter(sourceID string, sourceType domain.SourceType, region string, pageSize int, cfg config.EndpointConfig) (*JSONAPIAdapter, error) {
	location, err := resolveTimezone(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", sourceID, err)
	}
	return &JSONAPIAdapter{
		sourceID:   sourceID,
		sourceType: sourceType,
		region:     region,
		pageSize:   pageSize,
		cfg:        cfg,
		location:   location,
	}, nil
}

// SourceID identifies the originating collector on every record.
func (a *JSONAPIAdapter) SourceID() string { return a.sourceID }

// FirstPage returns the source's pagination origin (0- or 1-based).
func (a *JSONAPIAdapter) FirstPage() int { return a.cfg.PageStart }

// FetchPage requests one page and decodes its item list. A payload that is
// not valid JSON, or whose items path is missing, is a parse error and
// terminal for this adapter.
func (a *JSONAPIAdapter) FetchPage(ctx context.Context, fetcher ports.Fetcher, page int) (collector.PageResult, error) {
	params := map[string]string{}
	for k, v := range a.cfg.Params {
		params[k] = v
	}
	if a.cfg.PageParam != "" {
		params[a.cfg.PageParam] = strconv.Itoa(page)
	}
	if a.cfg.SizeParam != "" && a.pageSize > 0 {
		params[a.cfg.SizeParam] = strconv.Itoa(a.pageSize)
	}

	resp, err := fetcher.Fetch(ctx, ports.FetchRequest{
		URL:    expandPageURL(a.cfg.URL, page),
		Params: params,
	})
	if err != nil {
		return collector.PageResult{}, err
	}

	var payload any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return collector.PageResult{}, fmt.Errorf("%w: %v", collector.ErrParse, err)
	}

	items, err := a.itemList(payload)
	if err != nil {
		return collector.PageResult{}, err
	}

	records := make([]domain.RawRecord, 0, len(items))
	for _, item := range items {
		record, ok := a.buildRecord(item)
		if !ok {
			continue
		}
		records = append(records, record)
	}

	return collector.PageResult{
		Records: records,
		HasMore: a.hasMore(payload, page, len(items)),
	}, nil
}

func (a *JSONAPIAdapter) itemList(payload any) ([]any, error) {
	node, ok := lookupPath(payload, a.cfg.ItemsPath)
	if !ok {
		return nil, fmt.Errorf("%w: items path %q missing", collector.ErrParse, a.cfg.ItemsPath)
	}
	items, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: items path %q is not a list", collector.ErrParse, a.cfg.ItemsPath)
	}
	return items, nil
}

func (a *JSONAPIAdapter) buildRecord(item any) (domain.RawRecord, bool) {
	title := a.field(item, fieldTitle)
	rawURL := a.field(item, fieldURL)
	if title == "" || rawURL == "" {
		return domain.RawRecord{}, false
	}

	absolute, err := AbsoluteURL(a.cfg.BaseURL, rawURL)
	if err != nil {
		return domain.RawRecord{}, false
	}

	record := domain.RawRecord{
		SourceID:    a.sourceID,
		SourceType:  a.sourceType,
		Title:       title,
		Summary:     a.field(item, fieldSummary),
		ContentHTML: SanitizeHTML(a.field(item, fieldContent)),
		URL:         absolute,
		Region:      a.region,
	}
	if region := a.field(item, fieldRegion); region != "" {
		record.Region = region
	}
	if raw := a.field(item, fieldPublishDate); raw != "" {
		if parsed, err := NormalizeDate(raw, a.cfg.DateFormats, a.location); err == nil {
			record.PublishDate = parsed
		}
	}

	for key, spec := range a.cfg.Fields {
		if reservedField(key) {
			continue
		}
		value := stringAt(item, spec.Path)
		if value == "" {
			value = spec.Default
		}
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

func (a *JSONAPIAdapter) field(item any, key string) string {
	spec, ok := a.cfg.Fields[key]
	if !ok {
		return ""
	}
	value := stringAt(item, spec.Path)
	if value == "" {
		value = spec.Default
	}
	return value
}

// hasMore prefers the source's reported total; without one, a full page
// implies another may follow.
func (a *JSONAPIAdapter) hasMore(payload any, page, itemCount int) bool {
	if a.cfg.TotalPath != "" {
		if total, ok := intAt(payload, a.cfg.TotalPath); ok {
			fetched := (page - a.cfg.PageStart + 1) * a.pageSize
			return a.pageSize > 0 && fetched < total
		}
	}
	return a.pageSize > 0 && itemCount == a.pageSize
}

func reservedField(key string) bool {
	switch key {
	case fieldTitle, fieldURL, fieldSummary, fieldContent, fieldPublishDate, fieldRegion:
		return true
	}
	return false
}

func resolveTimezone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return location, nil
}
