package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MedMonitor/internal/collector"
	"MedMonitor/internal/config"
	"MedMonitor/internal/domain"
	"MedMonitor/internal/infrastructure/fetch"
	"MedMonitor/internal/ports"
)

func jsonEndpoint(url string) config.EndpointConfig {
	return config.EndpointConfig{
		Mode:      config.ModeJSON,
		URL:       url,
		BaseURL:   "https://example.cn",
		PageParam: "page",
		SizeParam: "size",
		PageStart: 1,
		ItemsPath: "data.items",
		TotalPath: "data.total",
		Fields: map[string]config.FieldSpec{
			"title":        {Path: "name"},
			"url":          {Path: "link"},
			"summary":      {Path: "brief"},
			"publish_date": {Path: "published"},
			"bid_amount":   {Path: "amount"},
		},
	}
}

func newJSONAdapter(t *testing.T, cfg config.EndpointConfig, pageSize int) *JSONAPIAdapter {
	t.Helper()
	adapter, err := NewJSONAPIAdapter("proc-json", domain.SourceProcurement, "guangdong", pageSize, cfg)
	if err != nil {
		t.Fatalf("NewJSONAPIAdapter: %v", err)
	}
	return adapter
}

func TestJSONAPIAdapterPaginatesByReportedTotal(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if r.URL.Query().Get("size") != "5" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		count := 5
		if page == "2" {
			count = 3
		}
		fmt.Fprintf(w, `{"data":{"total":8,"items":[`)
		for i := 0; i < count; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"name":"notice %s-%d","link":"/detail/%s-%d","published":"2026-03-0%d"}`,
				page, i, page, i, i+1)
		}
		fmt.Fprint(w, `]}}`)
	}))
	defer server.Close()

	adapter := newJSONAdapter(t, jsonEndpoint(server.URL), 5)
	fetcher := fetch.New(server.Client(), fetch.Options{Delay: time.Millisecond}, nil)
	col := collector.New("proc-json", collector.Strategy{Primary: adapter}, fetcher, 0, true, nil)

	result := col.Collect(context.Background())

	if result.Stats.Outcome != domain.OutcomeSucceeded {
		t.Fatalf("unexpected outcome: %s (%v)", result.Stats.Outcome, result.Stats.Errors)
	}
	if result.Stats.PagesFetched != 2 {
		t.Fatalf("expected 2 pages for total=8 size=5, got %d", result.Stats.PagesFetched)
	}
	if len(result.Records) != 8 {
		t.Fatalf("expected 8 records, got %d", len(result.Records))
	}

	first := result.Records[0]
	if first.SourceID != "proc-json" || first.SourceType != domain.SourceProcurement {
		t.Fatalf("source labeling missing: %+v", first)
	}
	if first.Region != "guangdong" {
		t.Fatalf("unexpected region: %s", first.Region)
	}
}

func TestJSONAPIAdapterBuildsRecords(t *testing.T) {
	t.Parallel()

	payload := `{"data":{"total":1,"items":[{
		"name":"Tender result",
		"link":"/detail/42.html",
		"brief":"award notice",
		"published":"2026-03-15",
		"amount":"1200000"
	}]}}`

	adapter := newJSONAdapter(t, jsonEndpoint("https://api.example.cn/list"), 10)
	result, err := adapter.FetchPage(context.Background(), stubFetcher{body: payload}, 1)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}

	rec := result.Records[0]
	if rec.URL != "https://example.cn/detail/42.html" {
		t.Fatalf("relative link must resolve against baseUrl: %s", rec.URL)
	}
	want := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	if !rec.PublishDate.Equal(want) {
		t.Fatalf("unexpected publish date: %v", rec.PublishDate)
	}
	if rec.Metadata["bid_amount"] != "1200000" {
		t.Fatalf("non-reserved field must land in metadata: %+v", rec.Metadata)
	}
	if result.HasMore {
		t.Fatal("total=1 must stop pagination")
	}
}

func TestJSONAPIAdapterSkipsIncompleteItems(t *testing.T) {
	t.Parallel()

	payload := `{"data":{"total":3,"items":[
		{"name":"has link","link":"/a"},
		{"name":"no link"},
		{"link":"/no-title"}
	]}}`

	adapter := newJSONAdapter(t, jsonEndpoint("https://api.example.cn/list"), 10)
	result, err := adapter.FetchPage(context.Background(), stubFetcher{body: payload}, 1)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("items without title or url must be dropped, got %d", len(result.Records))
	}
}

func TestJSONAPIAdapterParseErrors(t *testing.T) {
	t.Parallel()

	adapter := newJSONAdapter(t, jsonEndpoint("https://api.example.cn/list"), 10)

	if _, err := adapter.FetchPage(context.Background(), stubFetcher{body: `<html>`}, 1); err == nil {
		t.Fatal("non-JSON payload must fail")
	} else if !errorsIsParse(err) {
		t.Fatalf("expected a parse error, got %v", err)
	}

	if _, err := adapter.FetchPage(context.Background(), stubFetcher{body: `{"other":{}}`}, 1); err == nil {
		t.Fatal("missing items path must fail")
	} else if !errorsIsParse(err) {
		t.Fatalf("expected a parse error, got %v", err)
	}
}

func TestJSONAPIAdapterFullPageHeuristic(t *testing.T) {
	t.Parallel()

	cfg := jsonEndpoint("https://api.example.cn/list")
	cfg.TotalPath = ""
	adapter := newJSONAdapter(t, cfg, 2)

	full := `{"data":{"items":[{"name":"a","link":"/a"},{"name":"b","link":"/b"}]}}`
	result, err := adapter.FetchPage(context.Background(), stubFetcher{body: full}, 1)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if !result.HasMore {
		t.Fatal("a full page without a total must imply more pages")
	}

	short := `{"data":{"items":[{"name":"a","link":"/a"}]}}`
	result, err = adapter.FetchPage(context.Background(), stubFetcher{body: short}, 2)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if result.HasMore {
		t.Fatal("a short page must end pagination")
	}
}

// stubFetcher serves a fixed body for any request.
type stubFetcher struct {
	body string
	url  string
}

func (f stubFetcher) Fetch(context.Context, ports.FetchRequest) (ports.FetchResponse, error) {
	return ports.FetchResponse{StatusCode: http.StatusOK, Body: []byte(f.body), FinalURL: f.url}, nil
}

func errorsIsParse(err error) bool {
	return errors.Is(err, collector.ErrParse)
}
