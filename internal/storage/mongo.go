package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"alerts_ingestor/internal/config"
	"alerts_ingestor/internal/model"
)

const sourceURLField = "publicationSourceUrl"

// alertDocument is the stored shape of an alert; the collection assigns _id.
type alertDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	model.AlertRecord `bson:",inline"`
}

// Mongo implements Store on top of a MongoDB collection.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo wraps an existing collection. Close does not disconnect the
// collection's client.
func NewMongo(coll *mongo.Collection) *Mongo {
	return &Mongo{coll: coll}
}

// OpenMongo connects to the configured server, verifies it with a ping and
// ensures the collection indexes exist.
func OpenMongo(ctx context.Context, cfg config.MongoConfig) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI()))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	m := &Mongo{
		client: client,
		coll:   client.Database(cfg.Database).Collection(cfg.Collection),
	}
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

// EnsureIndexes creates the unique source URL index and a publication time index.
func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: sourceURLField, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("publicationSourceUrl_unique"),
		},
		{
			Keys: bson.D{{Key: "publicationDatetime", Value: -1}},
		},
	}
	if _, err := m.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// Close disconnects the client when the store owns it.
func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.Disconnect(context.Background())
}

// AddIfNotDuplicate looks up the source URL and inserts rec if it is absent.
// A duplicate key error from the unique index is reported as a duplicate.
func (m *Mongo) AddIfNotDuplicate(ctx context.Context, rec *model.AlertRecord) (string, bool, error) {
	if rec.PublicationSourceURL == "" {
		return "", false, ErrMissingSourceURL
	}

	err := m.coll.FindOne(ctx,
		bson.D{{Key: sourceURLField, Value: rec.PublicationSourceURL}},
		options.FindOne().SetProjection(bson.D{{Key: "_id", Value: 1}}),
	).Err()
	switch {
	case err == nil:
		return "", false, nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return "", false, fmt.Errorf("check duplicate: %w", err)
	}

	res, err := m.coll.InsertOne(ctx, alertDocument{AlertRecord: *rec})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("insert alert: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", false, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	rec.ID = oid.Hex()
	return rec.ID, true, nil
}

// AddBatchIfNotDuplicate adds each record in order and returns the IDs of the
// inserted ones.
func (m *Mongo) AddBatchIfNotDuplicate(ctx context.Context, recs []model.AlertRecord) ([]string, error) {
	return addBatch(ctx, m, recs)
}

// Get returns a single alert by its hex ObjectID.
func (m *Mongo) Get(ctx context.Context, id string) (*model.AlertRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	var doc alertDocument
	err = m.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find alert: %w", err)
	}
	return doc.record(), nil
}

// List returns all alerts in insertion order.
func (m *Mongo) List(ctx context.Context) ([]model.AlertRecord, error) {
	cur, err := m.coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find alerts: %w", err)
	}
	var docs []alertDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode alerts: %w", err)
	}

	alerts := make([]model.AlertRecord, 0, len(docs))
	for i := range docs {
		alerts = append(alerts, *docs[i].record())
	}
	return alerts, nil
}

// Delete removes an alert by its hex ObjectID.
func (m *Mongo) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	res, err := m.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of stored alerts.
func (m *Mongo) Count(ctx context.Context) (int64, error) {
	n, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

func (d *alertDocument) record() *model.AlertRecord {
	rec := d.AlertRecord
	rec.ID = d.ID.Hex()
	if rec.Tagging.Tags == nil {
		rec.Tagging.Tags = []string{}
	}
	return &rec
}
