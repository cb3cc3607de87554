// Package storage defines the deduplicating alert store and its implementations.
package storage

import (
	"context"
	"errors"
	"fmt"

	"alerts_ingestor/internal/model"
)

var (
	// ErrNotFound is returned when no alert has the requested ID.
	ErrNotFound = errors.New("alert not found")
	// ErrMissingSourceURL is returned for records without a deduplication key.
	ErrMissingSourceURL = errors.New("alert has no publication source url")
)

// Store persists alerts so that no two stored alerts share a PublicationSourceURL.
type Store interface {
	// AddIfNotDuplicate inserts rec unless an alert with the same
	// PublicationSourceURL exists. It reports the assigned ID and whether an
	// insert happened; a duplicate is not an error.
	AddIfNotDuplicate(ctx context.Context, rec *model.AlertRecord) (string, bool, error)
	// AddBatchIfNotDuplicate applies AddIfNotDuplicate to each record in order
	// and returns the IDs of the inserted ones.
	AddBatchIfNotDuplicate(ctx context.Context, recs []model.AlertRecord) ([]string, error)

	Get(ctx context.Context, id string) (*model.AlertRecord, error)
	List(ctx context.Context) ([]model.AlertRecord, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)

	Close() error
}

type singleAdder interface {
	AddIfNotDuplicate(ctx context.Context, rec *model.AlertRecord) (string, bool, error)
}

// addBatch inserts records one by one. On error the IDs inserted so far are
// returned alongside it; nothing is rolled back.
func addBatch(ctx context.Context, s singleAdder, recs []model.AlertRecord) ([]string, error) {
	ids := make([]string, 0, len(recs))
	for i := range recs {
		id, inserted, err := s.AddIfNotDuplicate(ctx, &recs[i])
		if err != nil {
			return ids, fmt.Errorf("add alert %q: %w", recs[i].PublicationSourceURL, err)
		}
		if inserted {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
