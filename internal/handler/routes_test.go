package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/portfolio/backend/internal/docstore"
	"github.com/portfolio/backend/internal/repository"
	"github.com/portfolio/backend/internal/service"
)

func newTestServer(t *testing.T, store docstore.Store) *httptest.Server {
	t.Helper()
	svc := service.NewContactService(repository.NewDocContactRepository(store))
	srv := httptest.NewServer(Routes(New(store, "*", true), NewContactHandler(svc, 25, 100)))
	t.Cleanup(srv.Close)
	return srv
}

func openRoutesSQLite(t *testing.T) docstore.Store {
	t.Helper()
	store, err := docstore.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "portfolio.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func TestRoutes_SubmitThenList(t *testing.T) {
	captureLogs(t)
	srv := newTestServer(t, openRoutesSQLite(t))

	for i := 0; i < 3; i++ {
		body := fmt.Sprintf(`{"name":"Visitor %d","email":"v%d@example.com","message":"Hello number %d!"}`, i, i, i)
		resp, err := http.Post(srv.URL+"/contact", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var created submitResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
		resp.Body.Close()
		require.NotEmpty(t, created.ID)
		require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	}

	resp, err := http.Get(srv.URL + "/messages?limit=2&source=portfolio")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, 2)
	require.Equal(t, "Visitor 2", list.Items[0].Name)
	require.Equal(t, "Visitor 1", list.Items[1].Name)
	require.Equal(t, "portfolio", list.Items[0].Source)
	require.False(t, list.Items[0].CreatedAt.IsZero())
}

func TestRoutes_ConcurrentSubmissions(t *testing.T) {
	captureLogs(t)
	srv := newTestServer(t, openRoutesSQLite(t))

	const n = 10
	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := fmt.Sprintf(`{"name":"Writer %d","email":"w%d@example.com","message":"concurrent message"}`, i, i)
			resp, err := http.Post(srv.URL+"/contact", "application/json", strings.NewReader(body))
			if err != nil {
				codes <- 0
				return
			}
			resp.Body.Close()
			codes <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		require.Equal(t, http.StatusOK, code)
	}

	resp, err := http.Get(srv.URL + "/messages?limit=50")
	require.NoError(t, err)
	defer resp.Body.Close()

	var list listResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Items, n)
	ids := map[string]bool{}
	for _, m := range list.Items {
		ids[m.ID] = true
	}
	require.Len(t, ids, n)
}

func TestRoutes_TestEndpointConnected(t *testing.T) {
	captureLogs(t)
	srv := newTestServer(t, openRoutesSQLite(t))

	resp, err := http.Get(srv.URL + "/test")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.True(t, body.OK)
	require.Equal(t, "connected", body.Database)
}

// unreachableStore never connects: every attempt fails on the URL scheme.
func unreachableStore() *docstore.DeferredStore {
	return docstore.NewDeferred(docstore.DeferredConfig{
		Store:         docstore.Config{URL: "unreachable://db.internal:27017"},
		Cause:         errors.New("dial tcp: connection refused"),
		RetryInterval: -1,
	})
}

func TestRoutes_UnavailableStore(t *testing.T) {
	captureLogs(t)
	srv := newTestServer(t, unreachableStore())

	resp, err := http.Get(srv.URL + "/test")
	require.NoError(t, err)
	var status testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.False(t, status.OK)
	require.True(t, strings.HasPrefix(status.Database, "error: "+docstore.ErrNotInitialized.Error()), status.Database)
	require.Contains(t, status.Database, docstore.ErrUnsupportedURL.Error())

	resp, err = http.Post(srv.URL+"/contact", "application/json",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com","message":"Is anyone there?"}`))
	require.NoError(t, err)
	var failed map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, "submit_failed", failed["error"])
	require.Equal(t, "Failed to save message: "+docstore.ErrNotInitialized.Error(), failed["detail"])

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRoutes_RecoversOnceStoreAppears(t *testing.T) {
	captureLogs(t)
	dir := filepath.Join(t.TempDir(), "late")
	store := docstore.NewDeferred(docstore.DeferredConfig{
		Store:         docstore.Config{URL: "sqlite://" + filepath.Join(dir, "portfolio.db")},
		RetryInterval: -1,
	})
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	srv := newTestServer(t, store)

	resp, err := http.Get(srv.URL + "/test")
	require.NoError(t, err)
	var status testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.False(t, status.OK)

	require.NoError(t, os.MkdirAll(dir, 0o755))

	resp, err = http.Post(srv.URL+"/contact", "application/json",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com","message":"Back online now."}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/test")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.True(t, status.OK)
	require.Equal(t, "connected", status.Database)
}

// hangingStore blocks every call until the caller's context ends, like a
// driver waiting for an unreachable server.
type hangingStore struct{}

func (hangingStore) CreateDocument(ctx context.Context, _ string, _ map[string]any) (docstore.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingStore) GetDocuments(ctx context.Context, _ string, _ docstore.Filter, _ int) ([]docstore.Document, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingStore) ListCollections(ctx context.Context) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingStore) EnsureCollection(ctx context.Context, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (hangingStore) Close(context.Context) error { return nil }

// TestRoutes_HangingStoreAnswersBeforeWriteTimeout serves the routes the way
// main does, with a server WriteTimeout, and checks that store failures are
// still delivered to the client.
func TestRoutes_HangingStoreAnswersBeforeWriteTimeout(t *testing.T) {
	captureLogs(t)
	store := hangingStore{}
	svc := service.NewContactService(repository.NewDocContactRepository(store))
	h := New(store, "*", true, WithStoreTimeout(100*time.Millisecond))

	srv := httptest.NewUnstartedServer(Routes(h, NewContactHandler(svc, 25, 100)))
	srv.Config.ReadTimeout = time.Second
	srv.Config.WriteTimeout = time.Second
	srv.Start()
	t.Cleanup(srv.Close)

	start := time.Now()
	resp, err := http.Get(srv.URL + "/test")
	require.NoError(t, err)
	var status testResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	require.Less(t, time.Since(start), time.Second)
	require.False(t, status.OK)
	require.Contains(t, status.Database, context.DeadlineExceeded.Error())

	resp, err = http.Post(srv.URL+"/contact", "application/json",
		strings.NewReader(`{"name":"Ada","email":"ada@example.com","message":"Anyone listening?"}`))
	require.NoError(t, err)
	var failed map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Contains(t, failed["detail"], context.DeadlineExceeded.Error())

	resp, err = http.Get(srv.URL + "/messages")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	captureLogs(t)
	srv := newTestServer(t, openRoutesSQLite(t))

	resp, err := http.Get(srv.URL + "/contact")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
