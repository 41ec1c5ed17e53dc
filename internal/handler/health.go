package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/portfolio/backend/internal/docstore"
)

type testResponse struct {
	OK       bool   `json:"ok"`
	Database string `json:"database"`
}

// pingStore lists collections under the handler's store deadline.
func (h *Handler) pingStore(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.storeTimeout)
	defer cancel()
	_, err := h.store.ListCollections(ctx)
	return err
}

// storeErrorText appends the last connection failure when the store has
// not connected yet.
func storeErrorText(err error) string {
	if cause := docstore.ConnectionCause(err); cause != nil {
		return err.Error() + ": " + cause.Error()
	}
	return err.Error()
}

// Test handles GET /test. Store failures are reported in the body, never
// as an HTTP error.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := h.pingStore(r.Context()); err != nil {
		slog.WarnContext(r.Context(), "store check failed",
			"error", storeErrorText(err),
			"request_id", RequestIDFromContext(r.Context()),
		)
		database := "error"
		if h.exposeStoreErrors {
			database = "error: " + storeErrorText(err)
		}
		_ = json.NewEncoder(w).Encode(testResponse{OK: false, Database: database})
		return
	}

	_ = json.NewEncoder(w).Encode(testResponse{OK: true, Database: "connected"})
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Health handles GET /healthz for load balancers: 503 while the store is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.pingStore(r.Context()); err != nil {
		message := "store unavailable"
		if h.exposeStoreErrors {
			message = storeErrorText(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:  "unhealthy",
			Message: message,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:  "ok",
		Message: "Portfolio API",
	})
}
