// Package rest exposes the sync trigger and status surface over HTTP.
package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/schema"

	"github.com/storekit/searchsync/internal/catalog"
	"github.com/storekit/searchsync/internal/syncer"
)

// SyncResponse is returned by the sync trigger endpoint. Status lets UIs
// distinguish "nothing to do" from "just finished work".
type SyncResponse struct {
	Success bool          `json:"success"`
	Status  syncer.Status `json:"status"`
	Synced  int           `json:"synced"`
}

// StatusResponse reports the lock state and last run for one entity kind.
type StatusResponse struct {
	Success bool            `json:"success"`
	Running bool            `json:"running"`
	LastRun *syncer.RunInfo `json:"lastRun,omitempty"`
}

// ErrorResponse is the failure shape for every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// syncOptions are the query parameters of the sync trigger endpoint.
type syncOptions struct {
	// Force bypasses the drift check and always resyncs.
	Force bool `schema:"force"`
}

var queryDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

// Handler serves the sync trigger and status endpoints.
type Handler struct {
	detector *syncer.Detector
	syncer   *syncer.Syncer
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(detector *syncer.Detector, s *syncer.Syncer, logger *slog.Logger) *Handler {
	return &Handler{
		detector: detector,
		syncer:   s,
		logger:   logger.With("component", "rest"),
	}
}

// Register mounts the routes on the mux.
func (h *Handler) Register(mux *http.ServeMux, authSecret string) {
	guard := requireAuth(authSecret)
	mux.HandleFunc("POST /sync/{entity}", withRequestID(guard(h.handleSync)))
	mux.HandleFunc("GET /sync/{entity}/status", withRequestID(guard(h.handleStatus)))
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleSync runs the drift check for one entity kind and resyncs when
// needed. ?force=true skips the check.
func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	kind := catalog.Kind(r.PathValue("entity"))
	if !kind.IsValid() {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown entity type")
		return
	}

	var opts syncOptions
	if err := queryDecoder.Decode(&opts, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid query parameters")
		return
	}

	result, err := h.detector.Check(r.Context(), kind, opts.Force)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownKind) {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown entity type")
			return
		}
		h.logger.Error("sync request failed", "kind", kind, "error", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "sync failed")
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Success: true,
		Status:  result.Status,
		Synced:  result.Synced,
	})
}

// handleStatus reports the lock state and last recorded run for a kind.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	kind := catalog.Kind(r.PathValue("entity"))
	if !kind.IsValid() {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "unknown entity type")
		return
	}

	resp := StatusResponse{
		Success: true,
		Running: h.syncer.Guard().Held(kind),
	}
	if info, ok := h.syncer.LastRun(kind); ok {
		resp.LastRun = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes a JSON response with proper error handling.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("failed to encode JSON response", "error", err)
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ErrorResponse{Success: false, Error: code, Message: message})
}

// withRequestID adds a unique request ID to response headers.
func withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString())
		next(w, r)
	}
}
