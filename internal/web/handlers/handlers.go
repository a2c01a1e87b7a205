package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/foxzi/techsupport/internal/web/auth"
	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/provider"
	"github.com/foxzi/techsupport/internal/web/reports"
	"github.com/foxzi/techsupport/internal/web/store"
	"github.com/foxzi/techsupport/internal/web/views"
)

// maxBodySize bounds JSON request bodies
const maxBodySize = 1 << 20

type Handlers struct {
	data    *provider.Provider
	auth    *auth.Manager
	reports *reports.Service
	views   *views.Engine
	logger  *slog.Logger
}

func New(data *provider.Provider, authn *auth.Manager, rep *reports.Service, engine *views.Engine, logger *slog.Logger) *Handlers {
	return &Handlers{
		data:    data,
		auth:    authn,
		reports: rep,
		views:   engine,
		logger:  logger,
	}
}

// APIErrorResponse represents an API error
type APIErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.apiJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Status returns the store connection state shown in the status banner
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	h.apiJSON(w, http.StatusOK, h.data.Status())
}

// render writes a full page
func (h *Handlers) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.views.Render(w, name, data); err != nil {
		h.logger.Error("failed to render template", "template", name, "error", err)
	}
}

// apiJSON sends a JSON response
func (h *Handlers) apiJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

// apiError sends an error response
func (h *Handlers) apiError(w http.ResponseWriter, status int, message, code string) {
	h.apiJSON(w, status, APIErrorResponse{
		Error: message,
		Code:  code,
	})
}

// apiFail maps a command or lookup error to a response. The error text is
// passed through so the UI can show it verbatim.
func (h *Handlers) apiFail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		h.apiJSON(w, http.StatusBadRequest, APIErrorResponse{
			Error:  "Validation failed",
			Code:   "VALIDATION_FAILED",
			Fields: verr.Fields,
		})
	case errors.Is(err, store.ErrNotFound):
		h.apiError(w, http.StatusNotFound, "Record not found", "NOT_FOUND")
	case errors.Is(err, provider.ErrDatabaseUnavailable), errors.Is(err, store.ErrClosed):
		h.apiError(w, http.StatusServiceUnavailable, err.Error(), "DATABASE_UNAVAILABLE")
	default:
		h.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		h.apiError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}

// decodeJSON reads a JSON body into v, rejecting unknown fields
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.apiError(w, http.StatusBadRequest, "Invalid request body", "INVALID_JSON")
		return false
	}
	return true
}
