package source

import (
	"context"
	"testing"
	"time"

	"MedMonitor/internal/config"
	"MedMonitor/internal/domain"
)

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>IVD Industry News</title>
    <item>
      <title>New chemiluminescence analyzer cleared</title>
      <link>https://news.example.cn/items/101</link>
      <description>Regulatory clearance granted.</description>
      <pubDate>Sun, 15 Mar 2026 09:00:00 GMT</pubDate>
      <category>diagnostics</category>
    </item>
    <item>
      <title>Untitled entry</title>
      <link></link>
    </item>
  </channel>
</rss>`

func TestRSSAdapterParsesFeed(t *testing.T) {
	t.Parallel()

	adapter := NewRSSAdapter("ivd-news", "", "", config.EndpointConfig{
		Mode: config.ModeRSS,
		URL:  "https://news.example.cn/rss",
	})

	result, err := adapter.FetchPage(context.Background(), stubFetcher{body: sampleFeed}, 1)
	if err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if result.HasMore {
		t.Fatal("feeds are a single page")
	}
	if len(result.Records) != 1 {
		t.Fatalf("items without a link must be dropped, got %d", len(result.Records))
	}

	rec := result.Records[0]
	if rec.SourceType != domain.SourceIndustryMedia {
		t.Fatalf("feed sources default to industry media, got %s", rec.SourceType)
	}
	if rec.Title != "New chemiluminescence analyzer cleared" {
		t.Fatalf("unexpected title: %q", rec.Title)
	}
	if rec.URL != "https://news.example.cn/items/101" {
		t.Fatalf("unexpected url: %s", rec.URL)
	}

	want := time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)
	if !rec.PublishDate.Equal(want) {
		t.Fatalf("unexpected publish date: %v", rec.PublishDate)
	}

	categories, ok := rec.Metadata["feed_categories"].([]string)
	if !ok || len(categories) != 1 || categories[0] != "diagnostics" {
		t.Fatalf("unexpected feed categories: %+v", rec.Metadata)
	}
}

func TestRSSAdapterRejectsNonFeedPayload(t *testing.T) {
	t.Parallel()

	adapter := NewRSSAdapter("ivd-news", "", "", config.EndpointConfig{URL: "https://news.example.cn/rss"})

	_, err := adapter.FetchPage(context.Background(), stubFetcher{body: `{"not":"xml"}`}, 1)
	if !errorsIsParse(err) {
		t.Fatalf("expected a parse error, got %v", err)
	}
}
