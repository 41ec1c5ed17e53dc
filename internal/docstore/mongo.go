package docstore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore stores documents in MongoDB collections.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	opts   storeOptions
}

// Ensure MongoStore implements Store at compile time.
var _ Store = (*MongoStore)(nil)

// mongoServerSelectionTimeout bounds how long an operation waits for a
// reachable server when the URI does not set serverSelectionTimeoutMS.
const mongoServerSelectionTimeout = 3 * time.Second

// OpenMongo connects to uri, pings the primary and selects database.
func OpenMongo(ctx context.Context, uri, database string, opts ...Option) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, mongoClientOptions(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database), opts: buildOptions(opts)}, nil
}

func mongoClientOptions(uri string) *options.ClientOptions {
	clientOpts := options.Client().ApplyURI(uri)
	if clientOpts.ServerSelectionTimeout == nil {
		clientOpts.SetServerSelectionTimeout(mongoServerSelectionTimeout)
	}
	return clientOpts
}

func (s *MongoStore) CreateDocument(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	now := s.opts.timestamp()
	data := userFields(fields)

	payload := bson.M{}
	for k, v := range data {
		payload[k] = v
	}
	payload[FieldCreatedAt] = now
	payload[FieldUpdatedAt] = now

	res, err := s.db.Collection(collection).InsertOne(ctx, payload)
	if err != nil {
		return nil, err
	}
	return stamped(data, objectIDString(res.InsertedID), now), nil
}

func (s *MongoStore) GetDocuments(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	if err := checkFilter(filter); err != nil {
		return nil, err
	}

	query := bson.M{}
	id, hasID, rest := splitFilter(filter)
	for k, v := range rest {
		query[k] = v
	}
	if hasID {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			query["_id"] = oid
		} else {
			query["_id"] = id
		}
	}

	findOpts := options.Find().
		SetSort(bson.D{{Key: FieldCreatedAt, Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(normalizeLimit(limit)))

	cursor, err := s.db.Collection(collection).Find(ctx, query, findOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []Document{}
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(raw))
	}
	return out, cursor.Err()
}

func (s *MongoStore) ListCollections(ctx context.Context) ([]string, error) {
	return s.db.ListCollectionNames(ctx, bson.D{})
}

func (s *MongoStore) EnsureCollection(ctx context.Context, collection string) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	_, err := s.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: FieldCreatedAt, Value: -1}},
	})
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func objectIDString(v any) string {
	if oid, ok := v.(primitive.ObjectID); ok {
		return oid.Hex()
	}
	return fmt.Sprint(v)
}

// fromBSON converts a decoded record into a Document with a string id and
// time.Time timestamps.
func fromBSON(raw bson.M) Document {
	doc := make(Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			doc[FieldID] = objectIDString(v)
			continue
		}
		doc[k] = fromBSONValue(v)
	}
	return doc
}

func fromBSONValue(v any) any {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.ObjectID:
		return val.Hex()
	case bson.M:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = fromBSONValue(inner)
		}
		return m
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = fromBSONValue(e.Value)
		}
		return m
	case bson.A:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = fromBSONValue(inner)
		}
		return out
	case time.Time:
		return val.UTC()
	default:
		return v
	}
}
