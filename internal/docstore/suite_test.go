package docstore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// stepClock advances by one second on every call so each document gets a
// distinct created_at.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type storeFactory func(t *testing.T, opts ...Option) Store

func uniqueCollection() string {
	return "c_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// runStoreSuite exercises the behaviour every backend must share.
func runStoreSuite(t *testing.T, newStore storeFactory) {
	t.Run("CreateDocumentStampsAndAssignsID", func(t *testing.T) {
		clock := newStepClock()
		s := newStore(t, WithClock(clock.Now))
		coll := uniqueCollection()

		doc, err := s.CreateDocument(context.Background(), coll, map[string]any{
			"name":       "Ada",
			"id":         "caller-supplied",
			"created_at": "ignored",
		})
		require.NoError(t, err)
		require.NotEmpty(t, doc.ID())
		require.NotEqual(t, "caller-supplied", doc.ID())
		require.Equal(t, "Ada", doc.String("name"))
		require.False(t, doc.Time(FieldCreatedAt).IsZero())
		require.Equal(t, doc.Time(FieldCreatedAt), doc.Time(FieldUpdatedAt))

		got, err := s.GetDocuments(context.Background(), coll, nil, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, doc.ID(), got[0].ID())
		require.Equal(t, "Ada", got[0].String("name"))
		require.True(t, doc.Time(FieldCreatedAt).Equal(got[0].Time(FieldCreatedAt)))
	})

	t.Run("GetDocumentsNewestFirstWithLimit", func(t *testing.T) {
		clock := newStepClock()
		s := newStore(t, WithClock(clock.Now))
		coll := uniqueCollection()

		var ids []string
		for i := 0; i < 5; i++ {
			doc, err := s.CreateDocument(context.Background(), coll, map[string]any{"n": i})
			require.NoError(t, err)
			ids = append(ids, doc.ID())
		}

		got, err := s.GetDocuments(context.Background(), coll, nil, 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, ids[4], got[0].ID())
		require.Equal(t, ids[3], got[1].ID())
		require.Equal(t, ids[2], got[2].ID())
		for i := 1; i < len(got); i++ {
			require.True(t, got[i-1].Time(FieldCreatedAt).After(got[i].Time(FieldCreatedAt)))
		}
	})

	t.Run("GetDocumentsEmptyCollection", func(t *testing.T) {
		s := newStore(t)
		got, err := s.GetDocuments(context.Background(), uniqueCollection(), nil, 10)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Empty(t, got)
	})

	t.Run("GetDocumentsFilter", func(t *testing.T) {
		s := newStore(t, WithClock(newStepClock().Now))
		coll := uniqueCollection()

		_, err := s.CreateDocument(context.Background(), coll, map[string]any{"source": "portfolio", "name": "a"})
		require.NoError(t, err)
		other, err := s.CreateDocument(context.Background(), coll, map[string]any{"source": "other", "name": "b"})
		require.NoError(t, err)
		_, err = s.CreateDocument(context.Background(), coll, map[string]any{"source": "portfolio", "name": "c"})
		require.NoError(t, err)

		got, err := s.GetDocuments(context.Background(), coll, Filter{"source": "portfolio"}, 10)
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "c", got[0].String("name"))
		require.Equal(t, "a", got[1].String("name"))

		byID, err := s.GetDocuments(context.Background(), coll, Filter{FieldID: other.ID()}, 10)
		require.NoError(t, err)
		require.Len(t, byID, 1)
		require.Equal(t, "b", byID[0].String("name"))
	})

	t.Run("ConcurrentCreatesAreAllVisible", func(t *testing.T) {
		s := newStore(t)
		coll := uniqueCollection()
		require.NoError(t, s.EnsureCollection(context.Background(), coll))

		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := s.CreateDocument(context.Background(), coll, map[string]any{"n": n})
				errs <- err
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.GetDocuments(context.Background(), coll, nil, 100)
		require.NoError(t, err)
		require.Len(t, got, writers)
		seen := map[string]bool{}
		for _, d := range got {
			seen[d.ID()] = true
		}
		require.Len(t, seen, writers)
	})

	t.Run("ListCollectionsIncludesWrittenCollection", func(t *testing.T) {
		s := newStore(t)
		coll := uniqueCollection()
		_, err := s.CreateDocument(context.Background(), coll, map[string]any{"k": "v"})
		require.NoError(t, err)

		names, err := s.ListCollections(context.Background())
		require.NoError(t, err)
		require.Contains(t, names, coll)
	})

	t.Run("EnsureCollectionIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		coll := uniqueCollection()
		require.NoError(t, s.EnsureCollection(context.Background(), coll))
		require.NoError(t, s.EnsureCollection(context.Background(), coll))
	})

	t.Run("RejectsInvalidNames", func(t *testing.T) {
		s := newStore(t)
		_, err := s.CreateDocument(context.Background(), "bad name; drop", map[string]any{})
		require.True(t, errors.Is(err, ErrInvalidCollection))

		_, err = s.GetDocuments(context.Background(), uniqueCollection(), Filter{"a.b": 1}, 1)
		require.True(t, errors.Is(err, ErrInvalidFilter))
	})
}
