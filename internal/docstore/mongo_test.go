package docstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URL")
	if uri == "" {
		t.Skip("TEST_MONGO_URL not set")
	}
	database := "docstore_test_" + uniqueCollection()

	runStoreSuite(t, func(t *testing.T, opts ...Option) Store {
		s, err := OpenMongo(context.Background(), uri, database, opts...)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.db.Drop(context.Background())
			_ = s.Close(context.Background())
		})
		return s
	})
}

func TestFromBSON_ConvertsIDAndDates(t *testing.T) {
	oid := primitive.NewObjectID()
	at := primitive.NewDateTimeFromTime(testTime())

	doc := fromBSON(bson.M{
		"_id":        oid,
		"created_at": at,
		"tags":       bson.A{"a", "b"},
		"meta":       bson.M{"seen": at},
	})

	require.Equal(t, oid.Hex(), doc.ID())
	require.True(t, testTime().Equal(doc.Time(FieldCreatedAt)))
	require.Equal(t, []any{"a", "b"}, doc["tags"])
	meta, ok := doc["meta"].(map[string]any)
	require.True(t, ok)
	require.True(t, testTime().Equal(meta["seen"].(time.Time)))
	_, hasRawID := doc["_id"]
	require.False(t, hasRawID)
}

func TestMongoClientOptions_ServerSelectionTimeout(t *testing.T) {
	opts := mongoClientOptions("mongodb://localhost:27017")
	require.NotNil(t, opts.ServerSelectionTimeout)
	require.Equal(t, mongoServerSelectionTimeout, *opts.ServerSelectionTimeout)

	opts = mongoClientOptions("mongodb://localhost:27017/?serverSelectionTimeoutMS=1500")
	require.Equal(t, 1500*time.Millisecond, *opts.ServerSelectionTimeout)
}
