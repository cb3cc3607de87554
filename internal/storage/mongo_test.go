package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"alerts_ingestor/internal/model"
)

const mockNS = "alerts.alerts"

func alertBSON(id primitive.ObjectID, url string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "aggregatorPlatform", Value: "Feedly"},
		{Key: "publicationSourceUrl", Value: url},
		{Key: "publicationDatetime", Value: int64(1700000000000)},
		{Key: "rawData", Value: bson.D{
			{Key: "originId", Value: "origin-" + url},
			{Key: "title", Value: "Advisory"},
		}},
		{Key: "summarization", Value: bson.D{{Key: "status", Value: "Not Started"}}},
		{Key: "tagging", Value: bson.D{{Key: "status", Value: "Not Tagged"}, {Key: "tags", Value: bson.A{}}}},
	}
}

func TestMongoAddIfNotDuplicate(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("inserts new alert", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch),
			mtest.CreateSuccessResponse(),
		)

		rec := testAlert("https://m/1")
		id, inserted, err := s.AddIfNotDuplicate(context.Background(), &rec)
		if err != nil {
			mt.Fatalf("add: %v", err)
		}
		if !inserted {
			mt.Fatal("expected insert")
		}
		if _, err := primitive.ObjectIDFromHex(id); err != nil {
			mt.Errorf("expected hex object id, got %q", id)
		}
		if diff := cmp.Diff(id, rec.ID); diff != "" {
			mt.Errorf("record id mismatch (-want +got):\n%s", diff)
		}
	})

	mt.Run("existing source url is duplicate", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch,
			bson.D{{Key: "_id", Value: primitive.NewObjectID()}},
		))

		rec := testAlert("https://m/1")
		id, inserted, err := s.AddIfNotDuplicate(context.Background(), &rec)
		if err != nil {
			mt.Fatalf("add: %v", err)
		}
		if inserted || id != "" || rec.ID != "" {
			mt.Errorf("expected duplicate, got inserted=%v id=%q", inserted, id)
		}
	})

	mt.Run("duplicate key on insert is duplicate", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch),
			mtest.CreateWriteErrorsResponse(mtest.WriteError{
				Index:   0,
				Code:    11000,
				Message: "E11000 duplicate key error",
			}),
		)

		rec := testAlert("https://m/1")
		_, inserted, err := s.AddIfNotDuplicate(context.Background(), &rec)
		if err != nil {
			mt.Fatalf("expected duplicate key to be absorbed, got %v", err)
		}
		if inserted {
			mt.Error("expected no insert")
		}
	})

	mt.Run("lookup failure propagates", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized",
		}))

		rec := testAlert("https://m/1")
		if _, _, err := s.AddIfNotDuplicate(context.Background(), &rec); err == nil {
			mt.Fatal("expected error")
		}
	})

	mt.Run("missing source url", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		rec := testAlert("")
		if _, _, err := s.AddIfNotDuplicate(context.Background(), &rec); !errors.Is(err, ErrMissingSourceURL) {
			mt.Fatalf("expected ErrMissingSourceURL, got %v", err)
		}
	})
}

func TestMongoAddBatch(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("counts only inserted", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(
			// https://b/1 is new
			mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch),
			mtest.CreateSuccessResponse(),
			// https://b/2 already stored
			mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch, bson.D{{Key: "_id", Value: primitive.NewObjectID()}}),
			// https://b/3 is new
			mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch),
			mtest.CreateSuccessResponse(),
		)

		ids, err := s.AddBatchIfNotDuplicate(context.Background(), []model.AlertRecord{
			testAlert("https://b/1"), testAlert("https://b/2"), testAlert("https://b/3"),
		})
		if err != nil {
			mt.Fatalf("batch: %v", err)
		}
		if diff := cmp.Diff(2, len(ids)); diff != "" {
			mt.Errorf("inserted count mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestMongoGetList(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	id1, id2 := primitive.NewObjectID(), primitive.NewObjectID()

	mt.Run("get", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch, alertBSON(id1, "https://g/1")))

		got, err := s.Get(context.Background(), id1.Hex())
		if err != nil {
			mt.Fatalf("get: %v", err)
		}
		want := testAlert("https://g/1")
		want.ID = id1.Hex()
		if diff := cmp.Diff(want, *got); diff != "" {
			mt.Errorf("Get mismatch (-want +got):\n%s", diff)
		}
	})

	mt.Run("get missing", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch))

		if _, err := s.Get(context.Background(), id1.Hex()); !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("get malformed id", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		if _, err := s.Get(context.Background(), "42"); !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("list", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch,
			alertBSON(id1, "https://l/1"),
			alertBSON(id2, "https://l/2"),
		))

		got, err := s.List(context.Background())
		if err != nil {
			mt.Fatalf("list: %v", err)
		}
		want := []model.AlertRecord{testAlert("https://l/1"), testAlert("https://l/2")}
		if diff := cmp.Diff(want, got, ignoreID); diff != "" {
			mt.Errorf("List mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{id1.Hex(), id2.Hex()}, []string{got[0].ID, got[1].ID}); diff != "" {
			mt.Errorf("ids mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestMongoDeleteCount(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	id := primitive.NewObjectID()

	mt.Run("delete existing", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		if err := s.Delete(context.Background(), id.Hex()); err != nil {
			mt.Fatalf("delete: %v", err)
		}
	})

	mt.Run("delete missing", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		if err := s.Delete(context.Background(), id.Hex()); !errors.Is(err, ErrNotFound) {
			mt.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("count", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}))
		n, err := s.Count(context.Background())
		if err != nil {
			mt.Fatalf("count: %v", err)
		}
		if diff := cmp.Diff(int64(3), n); diff != "" {
			mt.Errorf("count mismatch (-want +got):\n%s", diff)
		}
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		s := NewMongo(mt.Coll)
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		if err := s.EnsureIndexes(context.Background()); err != nil {
			mt.Fatalf("ensure indexes: %v", err)
		}
	})
}
