package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/techsupport/internal/web/auth"
	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/provider"
	"github.com/foxzi/techsupport/internal/web/reports"
	"github.com/foxzi/techsupport/internal/web/views"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

type testEnv struct {
	h      *Handlers
	data   *provider.Provider
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	data := provider.New(provider.Config{
		StorePath:      filepath.Join(t.TempDir(), "store.db"),
		ProjectID:      "handlers-test",
		ConnectTimeout: 5 * time.Second,
		Seed:           true,
		PasswordCost:   bcrypt.MinCost,
	}, nil, logger)
	require.NoError(t, data.Start(context.Background()))
	t.Cleanup(func() { data.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, data.WaitConnected(ctx))

	sessions := func() (auth.SessionStore, error) {
		st, err := data.Documents()
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	authn := auth.NewManager(auth.Options{}, data.UserByEmail, sessions, logger)
	engine, err := views.New()
	require.NoError(t, err)

	h := New(data, authn, reports.NewService(data, reports.NewClient(5*time.Second, "test"), logger), engine, logger)

	r := chi.NewRouter()
	r.Get("/api/status", h.Status)
	r.Get("/login", h.LoginPage)
	r.Post("/login", h.Login)
	r.Get("/logout", h.Logout)
	r.Get("/", h.Dashboard)
	r.Get("/api/live", h.Live)
	for _, res := range h.Resources() {
		r.Get("/api/admin/"+res.Path, res.List)
		r.Post("/api/admin/"+res.Path, res.Create)
		r.Put("/api/admin/"+res.Path+"/{id}", res.Update)
		r.Delete("/api/admin/"+res.Path+"/{id}", res.Delete)
	}
	r.Post("/api/admin/connection-test", h.ConnectionTest)
	r.Get("/api/environments/{id}/organizations", h.EnvironmentOrganizations)
	r.Get("/api/organizations/{id}/org-paths", h.OrganizationOrgPaths)
	r.Post("/api/reports/{operation}/preview", h.ReportPreview)
	r.Post("/api/reports/{operation}/send", h.ReportSend)

	return &testEnv{h: h, data: data, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[provider.Status](t, rec)
	assert.Equal(t, provider.StateConnected, st.State)
	assert.Equal(t, "handlers-test", st.ProjectID)
}

func TestEnvironmentCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/environments", `{"name":"QA","url":"https://qa.example.com"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[writeResponse](t, rec)
	require.NotEmpty(t, created.ID)

	require.Eventually(t, func() bool {
		_, ok := env.data.Environment(created.ID)
		return ok
	}, waitFor, tick)

	rec = env.do(t, http.MethodPut, "/api/admin/environments/"+created.ID, `{"name":"QA2","url":"https://qa2.example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Eventually(t, func() bool {
		e, _ := env.data.Environment(created.ID)
		return e.Name == "QA2"
	}, waitFor, tick)

	rec = env.do(t, http.MethodGet, "/api/admin/environments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Environment](t, rec)
	assert.Len(t, list, 2)

	rec = env.do(t, http.MethodDelete, "/api/admin/environments/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[writeResponse](t, rec).Deleted)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		path  string
		body  string
		field string
	}{
		{"environment url", "/api/admin/environments", `{"name":"X","url":"not a url"}`, "url"},
		{"environment name", "/api/admin/environments", `{"url":"https://x.example.com"}`, "name"},
		{"too many identifiers", "/api/admin/organizations",
			`{"name":"O","environmentId":"env_1","studyIdentifiers":[{"key":"a","value":"a"},{"key":"b","value":"b"},{"key":"c","value":"c"},{"key":"d","value":"d"},{"key":"e","value":"e"}]}`,
			"studyIdentifiers"},
		{"user password", "/api/admin/users", `{"name":"N","email":"n@example.com"}`, "password"},
		{"short password", "/api/admin/users", `{"name":"N","email":"n@example.com","password":"123"}`, "password"},
		{"user email", "/api/admin/users", `{"name":"N","email":"nope","password":"123456"}`, "email"},
		{"api key environment", "/api/admin/api-keys", `{"key":"k","organizationId":"org_1","environmentId":"env_other"}`, "organizationId"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tt.path, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decode[APIErrorResponse](t, rec)
			assert.Equal(t, "VALIDATION_FAILED", resp.Code)
			assert.Contains(t, resp.Fields, tt.field)
		})
	}

	rec := env.do(t, http.MethodPost, "/api/admin/environments", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decode[APIErrorResponse](t, rec).Code)
}

func TestUpdateMissingRecord(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPut, "/api/admin/org-paths/missing", `{"path":"a,b","organizationId":"org_1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteMissingCascadeRoot(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/api/admin/environments/missing", "/api/admin/organizations/missing"} {
		rec := env.do(t, http.MethodDelete, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	assert.Len(t, env.data.Environments(), 1)
	assert.Len(t, env.data.Organizations(), 4)
}

func TestListViewsResolveNames(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/admin/api-keys", "")
	require.Equal(t, http.StatusOK, rec.Code)
	keys := decode[[]apiKeyView](t, rec)
	require.Len(t, keys, 4)
	assert.Equal(t, "Acme Inc.", keys[0].OrganizationName)
	assert.Equal(t, "external.radpair.com", keys[0].EnvironmentName)
	assert.True(t, strings.HasSuffix(keys[0].MaskedKey, "1234"))

	rec = env.do(t, http.MethodGet, "/api/admin/users", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "passwordHash")

	// dangling references fall back to Unknown
	_, err := env.data.AddOrgPath(context.Background(), models.OrgPath{Path: "x", OrganizationID: "gone"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(env.data.OrgPaths()) == 4 }, waitFor, tick)

	rec = env.do(t, http.MethodGet, "/api/admin/org-paths", "")
	paths := decode[[]orgPathView](t, rec)
	assert.Equal(t, models.UnknownName, paths[len(paths)-1].OrganizationName)
}

func TestDeleteOrganizationCascades(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodDelete, "/api/admin/organizations/org_1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// org_1, key_1, path_1, path_2
	assert.Equal(t, 4, decode[writeResponse](t, rec).Deleted)

	require.Eventually(t, func() bool {
		return len(env.data.OrgPathsByOrganization("org_1")) == 0 && len(env.data.APIKeys()) == 3
	}, waitFor, tick)
}

func TestFilteredLists(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/environments/env_1/organizations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Organization](t, rec), 4)

	rec = env.do(t, http.MethodGet, "/api/environments/env_9/organizations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/organizations/org_1/org-paths", "")
	assert.Len(t, decode[[]models.OrgPath](t, rec), 2)
}

func TestReportPreview(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/reports/find/preview",
		`{"environmentId":"env_1","organizationId":"org_1","orgPathId":"path_1","accessionNumber":"A123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pv := decode[reports.Preview](t, rec)
	assert.Equal(t, "https://api.radpair.com/integrations/reports/find", pv.URL)
	assert.JSONEq(t, `{"accession_number":"A123","mrn":"","org_path":["dept1","regionA","groupX"]}`, pv.Payload)

	rec = env.do(t, http.MethodPost, "/api/reports/update/preview", `{"environmentId":"env_1","organizationId":"org_1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please select a status first.", decode[APIErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/reports/find/preview", `{"environmentId":"env_1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please select an organization first.", decode[APIErrorResponse](t, rec).Error)

	rec = env.do(t, http.MethodPost, "/api/reports/purge/preview", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReportSend(t *testing.T) {
	env := newTestEnv(t)

	var (
		mu               sync.Mutex
		gotAuth, gotBody string
	)
	received := func() (string, string) {
		mu.Lock()
		defer mu.Unlock()
		return gotAuth, gotBody
	}
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotAuth, gotBody = r.Header.Get("Authorization"), string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such report"))
	}))
	defer remote.Close()

	require.NoError(t, env.data.UpdateEnvironment(context.Background(),
		models.Environment{ID: "env_1", Name: "local", URL: remote.URL}))
	require.Eventually(t, func() bool {
		e, _ := env.data.Environment("env_1")
		return e.URL == remote.URL
	}, waitFor, tick)

	rec := env.do(t, http.MethodPost, "/api/reports/cancel/send",
		`{"environmentId":"env_1","organizationId":"org_2","accessionNumber":"B7"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[reports.Response](t, rec)
	assert.Equal(t, remote.URL+"/integrations/reports/cancel", resp.URL)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no such report", resp.Body)
	authHeader, body := received()
	assert.Equal(t, "Bearer ek_ext_xxxxxxxxxxxxxxxxxxxxx5678", authHeader)
	assert.Equal(t, `{"accession_number":"B7","patient_id":""}`, body)

	rec = env.do(t, http.MethodPost, "/api/reports/find/send",
		`{"environmentId":"env_1","organizationId":"org_1","payload":"{\"custom\":true}"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	_, body = received()
	assert.Equal(t, `{"custom":true}`, body)

	// org without a key in this environment
	id, err := env.data.AddOrganization(context.Background(), models.Organization{Name: "Keyless", EnvironmentID: "env_1"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { _, ok := env.data.Organization(id); return ok }, waitFor, tick)

	rec = env.do(t, http.MethodPost, "/api/reports/find/send", `{"environmentId":"env_1","organizationId":"`+id+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, reports.ErrMissingAPIKey.Error(), decode[APIErrorResponse](t, rec).Error)
}

func TestConnectionTest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/admin/connection-test", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[connectionTestResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, resp.ID)

	require.Eventually(t, func() bool {
		_, ok := env.data.UserByEmail("test@testy.com")
		return ok
	}, waitFor, tick)
}

func TestCommandsAfterClose(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.data.Close())

	rec := env.do(t, http.MethodPost, "/api/admin/environments", `{"name":"QA","url":"https://qa.example.com"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DATABASE_UNAVAILABLE", decode[APIErrorResponse](t, rec).Code)
}

func TestLoginFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/login", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `action="/login"`)

	form := url.Values{"email": {"admin@techsupport.dev"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid email or password. Please try again.")

	form.Set("password", "password")
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req = httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Acme Inc.")
	assert.Contains(t, body, "external.radpair.com")
	assert.Contains(t, body, "TRANSFER-OWNERSHIP")
}

func TestLiveFeed(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/live", nil)
	require.NoError(t, err)
	defer ws.Close()

	var first provider.Event
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitFor)))
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, provider.StateConnected, first.Status.State)

	_, err = env.data.AddEnvironment(context.Background(), models.Environment{Name: "Live", URL: "https://live.example.com"})
	require.NoError(t, err)

	for {
		var ev provider.Event
		require.NoError(t, ws.ReadJSON(&ev))
		if ev.Collection == "environments" {
			assert.Equal(t, 2, ev.Count)
			return
		}
	}
}
