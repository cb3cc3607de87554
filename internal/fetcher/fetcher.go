// Package fetcher retrieves alerts from upstream aggregators and turns them
// into model.AlertRecord values.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"alerts_ingestor/internal/model"
)

// maxBodySize caps a single upstream response.
const maxBodySize = 10 * 1024 * 1024

var (
	// ErrMalformedItem is returned when an upstream item lacks its identity or source URL.
	ErrMalformedItem = errors.New("malformed upstream item")
	// ErrUnknownPlatform is returned by New for platforms without a registered fetcher.
	ErrUnknownPlatform = errors.New("unknown aggregator platform")
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher retrieves every available alert from one upstream source.
type Fetcher interface {
	FetchAlerts(ctx context.Context, src model.SourceDescriptor) ([]model.AlertRecord, error)
}

// Params holds the fetch settings shared by every source of a run.
type Params struct {
	// ArticleCount is the page size requested from the upstream API.
	ArticleCount int
	// FetchAll follows continuation tokens until the upstream is exhausted.
	FetchAll bool
	// HoursAgo restricts results to items newer than now minus this many hours.
	// Zero disables the recency window.
	HoursAgo    int
	AccessToken string
	BaseURL     string
}

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

type constructor func(client HTTPClient, params Params, log *slog.Logger) Fetcher

var constructors = map[model.AggregatorPlatform]constructor{
	model.PlatformFeedly: func(c HTTPClient, p Params, l *slog.Logger) Fetcher { return NewStreamFetcher(c, p, l) },
	model.PlatformRSS:    func(c HTTPClient, p Params, l *slog.Logger) Fetcher { return NewRSSFetcher(c, p, l) },
}

// New returns the fetcher registered for platform.
func New(platform model.AggregatorPlatform, client HTTPClient, params Params, log *slog.Logger) (Fetcher, error) {
	build, ok := constructors[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPlatform, string(platform))
	}
	return build(client, params, log), nil
}

// ForSources builds one fetcher per distinct platform used by sources.
func ForSources(sources []model.SourceDescriptor, client HTTPClient, params Params, log *slog.Logger) (map[model.AggregatorPlatform]Fetcher, error) {
	fetchers := make(map[model.AggregatorPlatform]Fetcher)
	for _, src := range sources {
		p := src.PlatformOrDefault()
		if _, ok := fetchers[p]; ok {
			continue
		}
		f, err := New(p, client, params, log.With("platform", p.String()))
		if err != nil {
			return nil, err
		}
		fetchers[p] = f
	}
	return fetchers, nil
}

func millis(hours int) int64 {
	return int64(hours) * 3600 * 1000
}
