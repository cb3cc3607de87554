package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"alerts_ingestor/internal/model"
)

// Aggregator runs a Fetcher over each configured source and concatenates the results.
type Aggregator struct {
	fetchers map[model.AggregatorPlatform]Fetcher
	log      *slog.Logger
}

// NewAggregator creates an Aggregator dispatching each source to the fetcher of its platform.
func NewAggregator(fetchers map[model.AggregatorPlatform]Fetcher, log *slog.Logger) *Aggregator {
	return &Aggregator{fetchers: fetchers, log: log}
}

// Aggregate fetches every source in order. The first failing source aborts
// the whole aggregation and no partial result is returned.
func (a *Aggregator) Aggregate(ctx context.Context, sources []model.SourceDescriptor) ([]model.AlertRecord, error) {
	for _, src := range sources {
		if _, ok := a.fetchers[src.PlatformOrDefault()]; !ok {
			return nil, fmt.Errorf("feed %q: %w: %q", src.FeedName, ErrUnknownPlatform, src.PlatformOrDefault().String())
		}
	}

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.FeedName
	}
	a.log.Info("fetching alerts", "feeds", names)

	var all []model.AlertRecord
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records, err := a.fetchers[src.PlatformOrDefault()].FetchAlerts(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", src.FeedName, err)
		}
		all = append(all, records...)

		a.log.Info("fetched feed", "feed", src.FeedName, "count", len(records), "running_total", len(all))
	}

	a.log.Info("fetched all feeds", "feeds", len(sources), "total", len(all))
	return all, nil
}
