package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/regionseed/api"
	"github.com/agentic-research/regionseed/internal/record"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ Store = (*Mongo)(nil)

// Mongo stores each level in a collection of the configured database.
// Documents are keyed by _id; parent references are ObjectIDs.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects to uri and checks the server answers.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrUnavailable, uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: ping %s: %w", ErrUnavailable, uri, err)
	}
	return &Mongo{
		client: client,
		db:     client.Database(database),
	}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

// InsertMany implements Store. The driver's ordered insert stops at the
// first failing document.
func (m *Mongo) InsertMany(ctx context.Context, level api.Level, records []record.Stored) error {
	docs := make([]any, len(records))
	for i, r := range records {
		docs[i] = MongoDocument(level, r)
	}
	if _, err := m.db.Collection(level.Collection).InsertMany(ctx, docs); err != nil {
		return classifyMongo(err, ErrRejected, "insert into "+level.Collection)
	}
	return nil
}

// FindAll implements Store.
func (m *Mongo) FindAll(ctx context.Context, level api.Level) ([]record.Stored, error) {
	cur, err := m.db.Collection(level.Collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, classifyMongo(err, ErrUnavailable, "find in "+level.Collection)
	}
	defer func() { _ = cur.Close(ctx) }()

	var out []record.Stored
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", level.Collection, err)
		}
		r, err := FromMongoDocument(level, doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", level.Collection, err)
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, classifyMongo(err, ErrUnavailable, "iterate "+level.Collection)
	}
	return out, nil
}

// MongoDocument renders a stored record as an ordered BSON document.
func MongoDocument(level api.Level, r record.Stored) bson.D {
	doc := bson.D{
		{Key: "_id", Value: r.ID},
		{Key: level.Output.Name, Value: r.Name},
		{Key: level.Output.Code, Value: r.Code},
	}
	if level.Output.Parent != "" {
		doc = append(doc, bson.E{Key: level.Output.Parent, Value: r.ParentID})
	}
	return doc
}

// FromMongoDocument rebuilds a stored record from a decoded document.
func FromMongoDocument(level api.Level, doc bson.M) (record.Stored, error) {
	id, ok := doc["_id"].(primitive.ObjectID)
	if !ok {
		return record.Stored{}, fmt.Errorf("_id: expected ObjectID, got %T", doc["_id"])
	}
	r := record.Stored{ID: id}

	var err error
	if r.Name, err = stringField(doc, level.Output.Name); err != nil {
		return record.Stored{}, fmt.Errorf("document %s: %w", id.Hex(), err)
	}
	if r.Code, err = stringField(doc, level.Output.Code); err != nil {
		return record.Stored{}, fmt.Errorf("document %s: %w", id.Hex(), err)
	}
	if level.Output.Parent != "" {
		parent, ok := doc[level.Output.Parent].(primitive.ObjectID)
		if !ok {
			return record.Stored{}, fmt.Errorf("document %s: field %q: expected ObjectID, got %T",
				id.Hex(), level.Output.Parent, doc[level.Output.Parent])
		}
		r.ParentID = parent
	}
	return r, nil
}

// classifyMongo tags a driver error with ErrUnavailable or ErrRejected.
// fallback is used when the error is neither a network nor a write error.
func classifyMongo(err error, fallback error, op string) error {
	switch {
	case mongo.IsNetworkError(err), mongo.IsTimeout(err),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, mongo.ErrClientDisconnected):
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s: %w", ErrRejected, op, err)
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) {
		return fmt.Errorf("%w: %s: %w", ErrRejected, op, err)
	}
	return fmt.Errorf("%w: %s: %w", fallback, op, err)
}
