package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"alerts_ingestor/internal/model"
)

// streamPage is one page of the stream contents endpoint.
type streamPage struct {
	Items        []json.RawMessage `json:"items"`
	Continuation string            `json:"continuation"`
}

// streamItem holds the fields of an upstream item that the record model extracts.
type streamItem struct {
	OriginID     *string      `json:"originId"`
	CanonicalURL string       `json:"canonicalUrl"`
	Alternate    []streamLink `json:"alternate"`
	Published    int64        `json:"published"`
}

type streamLink struct {
	Href string `json:"href"`
	Type string `json:"type,omitempty"`
}

// StreamFetcher walks the paginated stream contents API of a Feedly-style aggregator.
type StreamFetcher struct {
	client HTTPClient
	params Params
	log    *slog.Logger
	now    func() time.Time
}

// NewStreamFetcher creates a StreamFetcher with the given HTTP client.
func NewStreamFetcher(client HTTPClient, params Params, log *slog.Logger) *StreamFetcher {
	return &StreamFetcher{
		client: client,
		params: params,
		log:    log,
		now:    time.Now,
	}
}

// FetchAlerts retrieves the items of src page by page. With FetchAll unset
// only the first page is read.
func (f *StreamFetcher) FetchAlerts(ctx context.Context, src model.SourceDescriptor) ([]model.AlertRecord, error) {
	var newerThan *int64
	if f.params.HoursAgo > 0 {
		cutoff := f.now().UnixMilli() - millis(f.params.HoursAgo)
		newerThan = &cutoff
	}

	f.log.Info("fetching feed", "feed", src.FeedName, "stream_id", src.StreamID)

	var (
		records      []model.AlertRecord
		continuation string
		pages        int
	)
	for {
		page, err := f.fetchPage(ctx, src.StreamID, newerThan, continuation)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d of %q: %w", pages+1, src.FeedName, err)
		}
		pages++

		for i, raw := range page.Items {
			rec, err := decodeStreamItem(raw)
			if err != nil {
				return nil, fmt.Errorf("decode item %d on page %d of %q: %w", i, pages, src.FeedName, err)
			}
			records = append(records, rec)
		}

		f.log.Debug("fetched batch",
			"feed", src.FeedName, "page", pages, "batch", len(page.Items), "total", len(records))

		continuation = page.Continuation
		if !f.params.FetchAll || continuation == "" {
			break
		}
	}

	f.log.Info("finished feed", "feed", src.FeedName, "pages", pages, "count", len(records))
	return records, nil
}

func (f *StreamFetcher) fetchPage(ctx context.Context, streamID string, newerThan *int64, continuation string) (*streamPage, error) {
	u, err := url.Parse(f.params.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("streamId", streamID)
	q.Set("count", strconv.Itoa(f.params.ArticleCount))
	if newerThan != nil {
		q.Set("newerThan", strconv.FormatInt(*newerThan, 10))
	}
	if continuation != "" {
		q.Set("continuation", continuation)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+f.params.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var page streamPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &page, nil
}

func decodeStreamItem(raw json.RawMessage) (model.AlertRecord, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.AlertRecord{}, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	if data == nil {
		return model.AlertRecord{}, fmt.Errorf("%w: null item", ErrMalformedItem)
	}

	var item streamItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return model.AlertRecord{}, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}
	if item.OriginID == nil {
		return model.AlertRecord{}, fmt.Errorf("%w: missing originId", ErrMalformedItem)
	}

	sourceURL := item.CanonicalURL
	if sourceURL == "" && len(item.Alternate) > 0 {
		sourceURL = item.Alternate[0].Href
	}
	if sourceURL == "" {
		return model.AlertRecord{}, fmt.Errorf("%w: no canonicalUrl or alternate link for %s", ErrMalformedItem, *item.OriginID)
	}

	return model.NewAlertRecord(model.PlatformFeedly, sourceURL, item.Published, data), nil
}
