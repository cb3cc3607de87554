package fetcher

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"alerts_ingestor/internal/model"
)

// RSSFetcher reads a plain RSS or Atom feed. The source StreamID is the feed URL.
type RSSFetcher struct {
	client HTTPClient
	params Params
	log    *slog.Logger
	now    func() time.Time
}

// NewRSSFetcher creates an RSSFetcher with the given HTTP client.
func NewRSSFetcher(client HTTPClient, params Params, log *slog.Logger) *RSSFetcher {
	return &RSSFetcher{
		client: client,
		params: params,
		log:    log,
		now:    time.Now,
	}
}

// FetchAlerts downloads and parses the feed at src.StreamID. RSS has no
// pagination, so without FetchAll the result is capped at ArticleCount.
func (f *RSSFetcher) FetchAlerts(ctx context.Context, src model.SourceDescriptor) ([]model.AlertRecord, error) {
	var cutoff time.Time
	if f.params.HoursAgo > 0 {
		cutoff = f.now().Add(-time.Duration(f.params.HoursAgo) * time.Hour)
	}

	feed, err := f.fetch(ctx, src.StreamID)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", src.FeedName, err)
	}

	var records []model.AlertRecord
	for i, item := range feed.Items {
		published := itemTime(item)
		if !cutoff.IsZero() && published != nil && !published.After(cutoff) {
			continue
		}
		rec, err := rssRecord(item, published)
		if err != nil {
			return nil, fmt.Errorf("decode item %d of %q: %w", i, src.FeedName, err)
		}
		records = append(records, rec)
	}

	if !f.params.FetchAll && f.params.ArticleCount > 0 && len(records) > f.params.ArticleCount {
		records = records[:f.params.ArticleCount]
	}

	f.log.Info("finished feed", "feed", src.FeedName, "count", len(records))
	return records, nil
}

func (f *RSSFetcher) fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "AlertsIngestor/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

func itemTime(item *gofeed.Item) *time.Time {
	if item.PublishedParsed != nil {
		return item.PublishedParsed
	}
	return item.UpdatedParsed
}

func rssRecord(item *gofeed.Item, published *time.Time) (model.AlertRecord, error) {
	if item == nil {
		return model.AlertRecord{}, fmt.Errorf("%w: null item", ErrMalformedItem)
	}

	sourceURL := item.Link
	if sourceURL == "" && len(item.Links) > 0 {
		sourceURL = item.Links[0]
	}
	if sourceURL == "" {
		return model.AlertRecord{}, fmt.Errorf("%w: no link for %q", ErrMalformedItem, item.Title)
	}

	encoded, err := json.Marshal(item)
	if err != nil {
		return model.AlertRecord{}, fmt.Errorf("encode item: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(encoded, &raw); err != nil {
		return model.AlertRecord{}, fmt.Errorf("encode item: %w", err)
	}
	raw["originId"] = ItemGUID(item)

	var ms int64
	if published != nil {
		ms = published.UnixMilli()
	}
	return model.NewAlertRecord(model.PlatformRSS, sourceURL, ms, raw), nil
}
