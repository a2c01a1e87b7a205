package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/techsupport/internal/web/models"
)

// Resource bundles the admin handlers of one collection
type Resource struct {
	Path   string
	List   http.HandlerFunc
	Create http.HandlerFunc
	Update http.HandlerFunc
	Delete http.HandlerFunc
}

// entity describes how one collection is listed, checked and written
type entity[T any] struct {
	path   string
	list   func() []T
	view   func(T) any
	id     func(*T) *string
	check  func(v *T, creating bool) error
	add    func(context.Context, T) (string, error)
	update func(context.Context, T) error
	// remove returns the number of cascaded documents, 0 for leaf deletes
	remove func(context.Context, string) (int, error)
}

type writeResponse struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status"`
	Deleted int    `json:"deleted,omitempty"`
}

func (e entity[T]) resource(h *Handlers) Resource {
	return Resource{
		Path: e.path,

		List: func(w http.ResponseWriter, r *http.Request) {
			items := e.list()
			out := make([]any, 0, len(items))
			for _, it := range items {
				out = append(out, e.view(it))
			}
			h.apiJSON(w, http.StatusOK, out)
		},

		Create: func(w http.ResponseWriter, r *http.Request) {
			var v T
			if !h.decodeJSON(w, r, &v) {
				return
			}
			if err := e.check(&v, true); err != nil {
				h.apiFail(w, r, err)
				return
			}
			id, err := e.add(r.Context(), v)
			if err != nil {
				h.apiFail(w, r, err)
				return
			}
			h.logger.Info("record created", "collection", e.path, "id", id)
			h.apiJSON(w, http.StatusCreated, writeResponse{ID: id, Status: "created"})
		},

		Update: func(w http.ResponseWriter, r *http.Request) {
			var v T
			if !h.decodeJSON(w, r, &v) {
				return
			}
			id := chi.URLParam(r, "id")
			*e.id(&v) = id
			if err := e.check(&v, false); err != nil {
				h.apiFail(w, r, err)
				return
			}
			if err := e.update(r.Context(), v); err != nil {
				h.apiFail(w, r, err)
				return
			}
			h.logger.Info("record updated", "collection", e.path, "id", id)
			h.apiJSON(w, http.StatusOK, writeResponse{ID: id, Status: "updated"})
		},

		Delete: func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			n, err := e.remove(r.Context(), id)
			if err != nil {
				h.apiFail(w, r, err)
				return
			}
			h.logger.Info("record deleted", "collection", e.path, "id", id, "cascade", n)
			h.apiJSON(w, http.StatusOK, writeResponse{ID: id, Status: "deleted", Deleted: n})
		},
	}
}

func validateOnly[T any](v *T, _ bool) error {
	return models.Validate(v)
}

func identity[T any](v T) any {
	return v
}

func leaf(fn func(context.Context, string) error) func(context.Context, string) (int, error) {
	return func(ctx context.Context, id string) (int, error) {
		return 0, fn(ctx, id)
	}
}

type organizationView struct {
	models.Organization
	EnvironmentName string `json:"environmentName"`
}

type apiKeyView struct {
	models.APIKey
	MaskedKey        string `json:"maskedKey"`
	OrganizationName string `json:"organizationName"`
	EnvironmentName  string `json:"environmentName"`
}

type orgPathView struct {
	models.OrgPath
	OrganizationName string `json:"organizationName"`
}

type apiActionView struct {
	models.APIAction
	EnvironmentName string `json:"environmentName"`
}

// Resources returns the admin handlers of every collection
func (h *Handlers) Resources() []Resource {
	p := h.data
	return []Resource{
		entity[models.Environment]{
			path:   "environments",
			list:   p.Environments,
			view:   identity[models.Environment],
			id:     func(v *models.Environment) *string { return &v.ID },
			check:  validateOnly[models.Environment],
			add:    p.AddEnvironment,
			update: p.UpdateEnvironment,
			remove: p.DeleteEnvironment,
		}.resource(h),

		entity[models.Organization]{
			path: "organizations",
			list: p.Organizations,
			view: func(o models.Organization) any {
				return organizationView{o, models.NameOr(p.EnvironmentName(o.EnvironmentID))}
			},
			id:     func(v *models.Organization) *string { return &v.ID },
			check:  validateOnly[models.Organization],
			add:    p.AddOrganization,
			update: p.UpdateOrganization,
			remove: p.DeleteOrganization,
		}.resource(h),

		entity[models.APIKey]{
			path: "api-keys",
			list: p.APIKeys,
			view: func(k models.APIKey) any {
				return apiKeyView{
					APIKey:           k,
					MaskedKey:        k.Masked(),
					OrganizationName: models.NameOr(p.OrganizationName(k.OrganizationID)),
					EnvironmentName:  models.NameOr(p.EnvironmentName(k.EnvironmentID)),
				}
			},
			id:     func(v *models.APIKey) *string { return &v.ID },
			check:  h.checkAPIKey,
			add:    p.AddAPIKey,
			update: p.UpdateAPIKey,
			remove: leaf(p.DeleteAPIKey),
		}.resource(h),

		entity[models.OrgPath]{
			path: "org-paths",
			list: p.OrgPaths,
			view: func(op models.OrgPath) any {
				return orgPathView{op, models.NameOr(p.OrganizationName(op.OrganizationID))}
			},
			id:     func(v *models.OrgPath) *string { return &v.ID },
			check:  validateOnly[models.OrgPath],
			add:    p.AddOrgPath,
			update: p.UpdateOrgPath,
			remove: leaf(p.DeleteOrgPath),
		}.resource(h),

		entity[models.APIAction]{
			path: "api-actions",
			list: p.APIActions,
			view: func(a models.APIAction) any {
				return apiActionView{a, models.NameOr(p.EnvironmentName(a.EnvironmentID))}
			},
			id:     func(v *models.APIAction) *string { return &v.ID },
			check:  validateOnly[models.APIAction],
			add:    p.AddAPIAction,
			update: p.UpdateAPIAction,
			remove: leaf(p.DeleteAPIAction),
		}.resource(h),

		entity[models.User]{
			path:   "users",
			list:   p.Users,
			view:   func(u models.User) any { return u.Public() },
			id:     func(v *models.User) *string { return &v.ID },
			check:  checkUser,
			add:    p.AddUser,
			update: p.UpdateUser,
			remove: leaf(p.DeleteUser),
		}.resource(h),
	}
}

// checkAPIKey also rejects an organization that is known to belong to
// another environment. Unknown organizations are let through.
func (h *Handlers) checkAPIKey(k *models.APIKey, _ bool) error {
	if err := models.Validate(k); err != nil {
		return err
	}
	if org, ok := h.data.Organization(k.OrganizationID); ok && org.EnvironmentID != k.EnvironmentID {
		return models.NewValidationError("organizationId", "does not belong to the selected environment")
	}
	return nil
}

// checkUser requires a password on create. A hash sent by the client is
// never trusted.
func checkUser(u *models.User, creating bool) error {
	u.PasswordHash = ""
	u.Email = strings.TrimSpace(u.Email)
	if err := models.Validate(u); err != nil {
		return err
	}
	if creating && u.Password == "" {
		return models.NewValidationError("password", "is required")
	}
	return nil
}
