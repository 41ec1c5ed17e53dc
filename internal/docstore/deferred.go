package docstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRetryInterval throttles reconnection attempts of a DeferredStore.
const DefaultRetryInterval = 5 * time.Second

type connectFunc func(ctx context.Context, cfg Config, opts ...Option) (Store, error)

// DeferredStore stands in for a store that could not be reached at startup.
// Operations fail with a *NotInitializedError until a connection succeeds;
// each call made at least RetryInterval after the previous attempt dials
// again, and the first successful dial is kept for the life of the process.
type DeferredStore struct {
	cfg       Config
	opts      []Option
	retry     time.Duration
	onConnect func(context.Context, Store)
	connect   connectFunc
	now       func() time.Time

	live atomic.Pointer[Store]

	mu          sync.Mutex
	dialing     bool
	lastAttempt time.Time
	lastErr     error
}

// Ensure DeferredStore implements Store at compile time.
var _ Store = (*DeferredStore)(nil)

// DeferredConfig configures NewDeferred.
type DeferredConfig struct {
	// Store is passed to Connect on every attempt.
	Store Config
	// Cause is the failure of the attempt already made, if any. When set,
	// the next attempt waits a full RetryInterval.
	Cause error
	// RetryInterval is the minimum time between attempts. Zero means
	// DefaultRetryInterval; a negative value retries on every call.
	RetryInterval time.Duration
	// OnConnect runs once, right after the first successful connection.
	OnConnect func(ctx context.Context, s Store)
}

// NewDeferred returns a store that connects lazily with Connect.
func NewDeferred(cfg DeferredConfig, opts ...Option) *DeferredStore {
	retry := cfg.RetryInterval
	switch {
	case retry == 0:
		retry = DefaultRetryInterval
	case retry < 0:
		retry = 0
	}
	s := &DeferredStore{
		cfg:       cfg.Store,
		opts:      opts,
		retry:     retry,
		onConnect: cfg.OnConnect,
		connect:   Connect,
		now:       time.Now,
		lastErr:   cfg.Cause,
	}
	if cfg.Cause != nil {
		s.lastAttempt = s.now()
	}
	return s
}

// store returns the live store, dialing when an attempt is due.
func (s *DeferredStore) store(ctx context.Context) (Store, error) {
	if p := s.live.Load(); p != nil {
		return *p, nil
	}

	s.mu.Lock()
	due := !s.dialing && (s.lastAttempt.IsZero() || s.now().Sub(s.lastAttempt) >= s.retry)
	if due {
		s.dialing = true
		s.lastAttempt = s.now()
	}
	cause := s.lastErr
	s.mu.Unlock()

	if !due {
		if p := s.live.Load(); p != nil {
			return *p, nil
		}
		return nil, &NotInitializedError{Cause: cause}
	}

	store, err := s.connect(ctx, s.cfg, s.opts...)

	s.mu.Lock()
	s.dialing = false
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		return nil, &NotInitializedError{Cause: err}
	}
	s.live.Store(&store)
	if s.onConnect != nil {
		s.onConnect(ctx, store)
	}
	return store, nil
}

func (s *DeferredStore) CreateDocument(ctx context.Context, collection string, fields map[string]any) (Document, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.CreateDocument(ctx, collection, fields)
}

func (s *DeferredStore) GetDocuments(ctx context.Context, collection string, filter Filter, limit int) ([]Document, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.GetDocuments(ctx, collection, filter, limit)
}

func (s *DeferredStore) ListCollections(ctx context.Context) ([]string, error) {
	store, err := s.store(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListCollections(ctx)
}

func (s *DeferredStore) EnsureCollection(ctx context.Context, collection string) error {
	store, err := s.store(ctx)
	if err != nil {
		return err
	}
	return store.EnsureCollection(ctx, collection)
}

// Close closes the live store, if any. A dial still in flight is not waited for.
func (s *DeferredStore) Close(ctx context.Context) error {
	if p := s.live.Load(); p != nil {
		return (*p).Close(ctx)
	}
	return nil
}
