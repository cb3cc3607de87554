package fetcher

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"alerts_ingestor/internal/model"
)

// stubFetcher returns canned records per stream id and records call order.
type stubFetcher struct {
	records map[string][]model.AlertRecord
	errs    map[string]error
	calls   []string
}

func (s *stubFetcher) FetchAlerts(_ context.Context, src model.SourceDescriptor) ([]model.AlertRecord, error) {
	s.calls = append(s.calls, src.StreamID)
	if err := s.errs[src.StreamID]; err != nil {
		return nil, err
	}
	return s.records[src.StreamID], nil
}

func recordsFor(urls ...string) []model.AlertRecord {
	var out []model.AlertRecord
	for _, u := range urls {
		out = append(out, model.NewAlertRecord(model.PlatformFeedly, u, 0, map[string]any{"originId": u}))
	}
	return out
}

func TestAggregate(t *testing.T) {
	sources := []model.SourceDescriptor{
		{FeedName: "A", StreamID: "a"},
		{FeedName: "B", StreamID: "b"},
		{FeedName: "C", StreamID: "c"},
	}

	tests := []struct {
		name      string
		records   map[string][]model.AlertRecord
		errs      map[string]error
		wantURLs  []string
		wantCalls []string
		wantErr   error
	}{
		{
			name: "concatenates in source order",
			records: map[string][]model.AlertRecord{
				"a": recordsFor("https://a/1", "https://a/2"),
				"b": nil,
				"c": recordsFor("https://c/1"),
			},
			wantURLs:  []string{"https://a/1", "https://a/2", "https://c/1"},
			wantCalls: []string{"a", "b", "c"},
		},
		{
			name: "first failure aborts remaining sources",
			records: map[string][]model.AlertRecord{
				"a": recordsFor("https://a/1"),
				"c": recordsFor("https://c/1"),
			},
			errs:      map[string]error{"b": &StatusError{StatusCode: 503}},
			wantCalls: []string{"a", "b"},
			wantErr:   &StatusError{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubFetcher{records: tt.records, errs: tt.errs}
			agg := NewAggregator(map[model.AggregatorPlatform]Fetcher{model.PlatformFeedly: stub}, discardLogger())

			got, err := agg.Aggregate(context.Background(), sources)
			if diff := cmp.Diff(tt.wantCalls, stub.calls); diff != "" {
				t.Errorf("call order mismatch (-want +got):\n%s", diff)
			}
			if tt.wantErr != nil {
				var se *StatusError
				if !errors.As(err, &se) {
					t.Fatalf("expected *StatusError, got %v", err)
				}
				if got != nil {
					t.Errorf("expected no partial result, got %d records", len(got))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.wantURLs, sourceURLs(got)); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAggregateDispatchesByPlatform(t *testing.T) {
	feedly := &stubFetcher{records: map[string][]model.AlertRecord{"f": recordsFor("https://f/1")}}
	rss := &stubFetcher{records: map[string][]model.AlertRecord{"r": recordsFor("https://r/1")}}
	agg := NewAggregator(map[model.AggregatorPlatform]Fetcher{
		model.PlatformFeedly: feedly,
		model.PlatformRSS:    rss,
	}, discardLogger())

	got, err := agg.Aggregate(context.Background(), []model.SourceDescriptor{
		{FeedName: "R", StreamID: "r", Platform: model.PlatformRSS},
		{FeedName: "F", StreamID: "f"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"https://r/1", "https://f/1"}, sourceURLs(got)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"r"}, rss.calls); diff != "" {
		t.Errorf("rss calls mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateMissingFetcher(t *testing.T) {
	stub := &stubFetcher{}
	agg := NewAggregator(map[model.AggregatorPlatform]Fetcher{model.PlatformFeedly: stub}, discardLogger())

	_, err := agg.Aggregate(context.Background(), []model.SourceDescriptor{
		{FeedName: "F", StreamID: "f"},
		{FeedName: "R", StreamID: "r", Platform: model.PlatformRSS},
	})
	if !errors.Is(err, ErrUnknownPlatform) {
		t.Fatalf("expected ErrUnknownPlatform, got %v", err)
	}
	if len(stub.calls) != 0 {
		t.Errorf("expected no fetches before validation failure, got %v", stub.calls)
	}
}

func TestAggregateCancelledContext(t *testing.T) {
	stub := &stubFetcher{}
	agg := NewAggregator(map[model.AggregatorPlatform]Fetcher{model.PlatformFeedly: stub}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Aggregate(ctx, []model.SourceDescriptor{{FeedName: "F", StreamID: "f"}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
