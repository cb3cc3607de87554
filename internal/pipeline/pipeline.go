// Package pipeline runs one ingestion pass: aggregate alerts from every
// configured source and store the ones not seen before.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"alerts_ingestor/internal/model"
)

// Source pulls alerts from a set of upstream feeds.
type Source interface {
	Aggregate(ctx context.Context, sources []model.SourceDescriptor) ([]model.AlertRecord, error)
}

// Store adds alerts, skipping those whose source URL is already stored.
type Store interface {
	AddBatchIfNotDuplicate(ctx context.Context, recs []model.AlertRecord) ([]string, error)
}

// Reporter receives the summary of every successful run.
type Reporter interface {
	ReportRun(ctx context.Context, s Summary) error
}

// Summary describes a completed run.
type Summary struct {
	Fetched     int
	New         int
	Skipped     int
	InsertedIDs []string
	Started     time.Time
	Finished    time.Time
}

// Duration returns how long the run took.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Pipeline wires a Source to a Store.
type Pipeline struct {
	source   Source
	sources  []model.SourceDescriptor
	store    Store
	reporter Reporter
	log      *slog.Logger
	now      func() time.Time
}

// New creates a Pipeline over the given sources.
func New(source Source, sources []model.SourceDescriptor, store Store, log *slog.Logger) *Pipeline {
	return &Pipeline{
		source:  source,
		sources: sources,
		store:   store,
		log:     log.With("component", "pipeline"),
		now:     time.Now,
	}
}

// SetReporter installs a Reporter called after each successful run.
func (p *Pipeline) SetReporter(r Reporter) {
	p.reporter = r
}

// Run performs one fetch-and-store pass. Errors from either stage are logged
// and returned as is; nothing is reported for a failed run.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	sum := Summary{Started: p.now()}

	alerts, err := p.source.Aggregate(ctx, p.sources)
	if err != nil {
		p.log.Error("run failed", "stage", "fetch", "error", err)
		return Summary{}, err
	}
	sum.Fetched = len(alerts)

	ids, err := p.store.AddBatchIfNotDuplicate(ctx, alerts)
	if err != nil {
		p.log.Error("run failed", "stage", "store", "inserted_before_error", len(ids), "error", err)
		return Summary{}, err
	}
	sum.InsertedIDs = ids
	sum.New = len(ids)
	sum.Skipped = sum.Fetched - sum.New
	sum.Finished = p.now()

	switch {
	case sum.Fetched == 0:
		p.log.Warn("no alerts fetched", "sources", len(p.sources))
	case sum.New == 0:
		p.log.Info("no new alerts since last refresh", "fetched", sum.Fetched)
	default:
		p.log.Info("added new alerts", "new", sum.New, "skipped", sum.Skipped, "fetched", sum.Fetched)
	}

	if p.reporter != nil {
		if err := p.reporter.ReportRun(ctx, sum); err != nil {
			p.log.Error("report run", "error", err)
		}
	}
	return sum, nil
}
