package handler

import "net/http"

// Routes registers the API endpoints and wraps them in the middleware chain:
// RequestLogger -> SecurityHeaders -> CORS -> LimitBody -> StoreDeadline -> mux.
func Routes(h *Handler, contactHandler *ContactHandler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /test", h.Test)
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("POST /contact", contactHandler.Submit)
	mux.HandleFunc("GET /messages", contactHandler.List)

	return RequestLogger(SecurityHeaders(h.CORS(LimitBody(StoreDeadline(h.storeTimeout)(mux)))))
}
