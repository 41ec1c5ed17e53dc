package handler

import (
	"context"
	"net/http"
	"time"
)

// DefaultStoreTimeout bounds the store calls made while serving one request.
const DefaultStoreTimeout = 3 * time.Second

// StoreProbe is the store introspection used by the health endpoints.
type StoreProbe interface {
	ListCollections(ctx context.Context) ([]string, error)
}

type Handler struct {
	store             StoreProbe
	frontendURL       string
	exposeStoreErrors bool
	storeTimeout      time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithStoreTimeout sets the deadline for store calls of each request. It
// should stay below the server's WriteTimeout.
func WithStoreTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.storeTimeout = d
		}
	}
}

// New creates the shared Handler. When exposeStoreErrors is false the
// health check reports failures without the underlying error text.
func New(store StoreProbe, frontendURL string, exposeStoreErrors bool, opts ...Option) *Handler {
	h := &Handler{
		store:             store,
		frontendURL:       frontendURL,
		exposeStoreErrors: exposeStoreErrors,
		storeTimeout:      DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CORS allows the configured frontend origin. "*" echoes the caller's Origin
// so credentialed requests keep working.
func (h *Handler) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := h.frontendURL
		if origin == "*" {
			if reqOrigin := r.Header.Get("Origin"); reqOrigin != "" {
				origin = reqOrigin
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
