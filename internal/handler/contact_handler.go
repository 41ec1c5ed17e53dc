package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/portfolio/backend/internal/model"
	"github.com/portfolio/backend/internal/service"
)

// ContactHandler handles contact form submission and message listing.
type ContactHandler struct {
	contactService service.ContactService
	defaultLimit   int
	maxLimit       int
}

// NewContactHandler creates a ContactHandler with the given service.
// defaultLimit applies when GET /messages has no limit; larger limits are
// clamped to maxLimit.
func NewContactHandler(contactService service.ContactService, defaultLimit, maxLimit int) *ContactHandler {
	return &ContactHandler{
		contactService: contactService,
		defaultLimit:   defaultLimit,
		maxLimit:       maxLimit,
	}
}

// submitRequest is the expected JSON body for POST /contact.
type submitRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// submitResponse is the JSON response for POST /contact.
type submitResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type validationErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// Submit handles POST /contact.
// name 2-100 chars, valid email, message 10-5000 chars; all measured after trimming.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "request_too_large"})
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_json"})
		return
	}

	input := normalizeContact(req)
	if problems := input.validate(); problems != nil {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(validationErrorResponse{
			Error:  "validation_failed",
			Fields: problems,
		})
		return
	}

	msg := &model.ContactMessage{
		Name:    input.Name,
		Email:   input.Email,
		Message: input.Message,
	}

	if err := h.contactService.Submit(r.Context(), msg); err != nil {
		slog.ErrorContext(r.Context(), "submit contact message failed",
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":  "submit_failed",
			"detail": "Failed to save message: " + err.Error(),
		})
		return
	}

	_ = json.NewEncoder(w).Encode(submitResponse{
		ID:      msg.ID,
		Name:    msg.Name,
		Email:   msg.Email,
		Message: msg.Message,
	})
}

// listResponse is the JSON response for GET /messages.
type listResponse struct {
	Items []*model.ContactMessage `json:"items"`
}

// List handles GET /messages.
// Supports query params: limit (default 25, clamped to the configured max), source.
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	opts := model.ContactListOptions{
		Source: r.URL.Query().Get("source"),
		Limit:  h.defaultLimit,
	}

	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_limit"})
			return
		}
		opts.Limit = min(n, h.maxLimit)
	}

	messages, err := h.contactService.List(r.Context(), opts)
	if err != nil {
		slog.ErrorContext(r.Context(), "list contact messages failed",
			"error", err,
			"request_id", RequestIDFromContext(r.Context()),
		)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":  "list_failed",
			"detail": err.Error(),
		})
		return
	}

	// Return [] not null for empty lists
	if messages == nil {
		messages = []*model.ContactMessage{}
	}

	_ = json.NewEncoder(w).Encode(listResponse{Items: messages})
}
