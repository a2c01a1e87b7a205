package handlers

import (
	"net/http"

	"github.com/foxzi/techsupport/internal/web/auth"
	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/provider"
	"github.com/foxzi/techsupport/internal/web/reports"
	"github.com/foxzi/techsupport/internal/web/store"
)

// pageData is shared by every rendered page
type pageData struct {
	Status provider.Status
	User   string
	Error  string
}

type collectionCount struct {
	Name  string
	Count int
}

type organizationRow struct {
	models.Organization
	Environment string
}

type dashboardPage struct {
	pageData
	Counts        []collectionCount
	Environments  []models.Environment
	Organizations []organizationRow
	Operations    []reports.Operation
}

func (h *Handlers) page(r *http.Request) pageData {
	data := pageData{Status: h.data.Status()}
	if sess, ok := auth.FromContext(r.Context()); ok {
		data.User = sess.Email
	}
	return data
}

// Dashboard renders the overview of every collection
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	orgs := h.data.Organizations()
	rows := make([]organizationRow, 0, len(orgs))
	for _, o := range orgs {
		rows = append(rows, organizationRow{
			Organization: o,
			Environment:  models.NameOr(h.data.EnvironmentName(o.EnvironmentID)),
		})
	}

	data := dashboardPage{
		pageData: h.page(r),
		Counts: []collectionCount{
			{store.CollectionEnvironments, len(h.data.Environments())},
			{store.CollectionOrganizations, len(orgs)},
			{store.CollectionAPIKeys, len(h.data.APIKeys())},
			{store.CollectionOrgPaths, len(h.data.OrgPaths())},
			{store.CollectionAPIActions, len(h.data.APIActions())},
			{store.CollectionUsers, len(h.data.Users())},
		},
		Environments:  h.data.Environments(),
		Organizations: rows,
		Operations:    reports.Operations,
	}
	h.render(w, http.StatusOK, "dashboard", data)
}
