package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/reports"
)

// EnvironmentOrganizations handles GET /api/environments/{id}/organizations
func (h *Handlers) EnvironmentOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs := h.data.OrganizationsByEnvironment(chi.URLParam(r, "id"))
	if orgs == nil {
		orgs = []models.Organization{}
	}
	h.apiJSON(w, http.StatusOK, orgs)
}

// OrganizationOrgPaths handles GET /api/organizations/{id}/org-paths
func (h *Handlers) OrganizationOrgPaths(w http.ResponseWriter, r *http.Request) {
	paths := h.data.OrgPathsByOrganization(chi.URLParam(r, "id"))
	if paths == nil {
		paths = []models.OrgPath{}
	}
	h.apiJSON(w, http.StatusOK, paths)
}

// reportRequest is the body of the report endpoints
type reportRequest struct {
	reports.Selection
	// Payload is the edited JSON text; empty sends the generated payload
	Payload string `json:"payload,omitempty"`
}

// ReportPreview handles POST /api/reports/{operation}/preview
func (h *Handlers) ReportPreview(w http.ResponseWriter, r *http.Request) {
	op, ok := h.reportOperation(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	preview, err := h.reports.Preview(op, req.Selection)
	if err != nil {
		h.reportError(w, r, err)
		return
	}
	h.apiJSON(w, http.StatusOK, preview)
}

// ReportSend handles POST /api/reports/{operation}/send. The remote
// outcome is always returned with 200; only local problems are errors.
func (h *Handlers) ReportSend(w http.ResponseWriter, r *http.Request) {
	op, ok := h.reportOperation(w, r)
	if !ok {
		return
	}
	var req reportRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.reports.Send(r.Context(), op, req.Selection, req.Payload)
	if err != nil {
		h.reportError(w, r, err)
		return
	}
	h.apiJSON(w, http.StatusOK, resp)
}

func (h *Handlers) reportOperation(w http.ResponseWriter, r *http.Request) (reports.Operation, bool) {
	op, err := reports.ParseOperation(chi.URLParam(r, "operation"))
	if err != nil {
		h.apiError(w, http.StatusNotFound, err.Error(), "UNKNOWN_OPERATION")
		return "", false
	}
	return op, true
}

func (h *Handlers) reportError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reports.ErrNoOrganization),
		errors.Is(err, reports.ErrStatusRequired),
		errors.Is(err, reports.ErrInvalidStatus),
		errors.Is(err, reports.ErrInvalidPayload),
		errors.Is(err, reports.ErrOrganizationNotInEnvironment):
		h.apiError(w, http.StatusBadRequest, err.Error(), "INVALID_SELECTION")
	case errors.Is(err, reports.ErrMissingTarget):
		h.apiError(w, http.StatusBadRequest, err.Error(), "MISSING_TARGET")
	case errors.Is(err, reports.ErrMissingAPIKey):
		h.apiError(w, http.StatusBadRequest, err.Error(), "MISSING_API_KEY")
	default:
		h.apiFail(w, r, err)
	}
}

// dummyUser is written by the connection test
var dummyUser = models.User{
	Name:     "dummy",
	Email:    "test@testy.com",
	Password: "123456789",
}

type connectionTestResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

// ConnectionTest handles POST /api/admin/connection-test by writing a
// dummy user through the provider
func (h *Handlers) ConnectionTest(w http.ResponseWriter, r *http.Request) {
	id, err := h.data.AddUser(r.Context(), dummyUser)
	if err != nil {
		h.logger.Warn("connection test failed", "error", err)
		h.apiJSON(w, http.StatusOK, connectionTestResponse{
			Message: "Error adding user: " + err.Error(),
		})
		return
	}
	h.apiJSON(w, http.StatusOK, connectionTestResponse{
		Success: true,
		ID:      id,
		Message: "User added successfully with ID: " + id,
	})
}
