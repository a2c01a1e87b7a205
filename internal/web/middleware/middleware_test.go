package middleware

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/techsupport/internal/web/auth"
)

type fakeAuth struct {
	valid map[string]auth.Session
}

func (f fakeAuth) SessionID(r *http.Request) string {
	c, err := r.Cookie("sid")
	if err != nil {
		return ""
	}
	return c.Value
}

func (f fakeAuth) Authenticate(_ context.Context, id string) (auth.Session, error) {
	sess, ok := f.valid[id]
	if !ok {
		return auth.Session{}, auth.ErrNoSession
	}
	return sess, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func withCookie(req *http.Request, id string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "sid", Value: id})
	return req
}

func TestRequireSession(t *testing.T) {
	authn := fakeAuth{valid: map[string]auth.Session{"good": {ID: "good", Email: "admin@techsupport.dev"}}}

	var seen auth.Session
	h := RequireSession(authn, discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name     string
		path     string
		cookie   string
		status   int
		location string
	}{
		{"page without session", "/", "", http.StatusSeeOther, LoginPath},
		{"page with stale session", "/", "stale", http.StatusSeeOther, LoginPath},
		{"api without session", "/api/admin/users", "", http.StatusUnauthorized, ""},
		{"page with session", "/", "good", http.StatusNoContent, ""},
		{"api with session", "/api/admin/users", "good", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.cookie != "" {
				req = withCookie(req, tt.cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, rec.Header().Get("Location"))
			}
			if tt.status == http.StatusUnauthorized {
				assert.JSONEq(t, `{"error":"Authentication required","code":"UNAUTHENTICATED"}`, rec.Body.String())
			}
		})
	}
	assert.Equal(t, "admin@techsupport.dev", seen.Email)
}

func TestRedirectAuthenticated(t *testing.T) {
	authn := fakeAuth{valid: map[string]auth.Session{"good": {ID: "good"}}}
	h := RedirectAuthenticated(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, LoginPath, nil), "good"))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withCookie(httptest.NewRequest(http.MethodGet, LoginPath, nil), "stale"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRealIP(t *testing.T) {
	trusted, err := ParseNetworks([]string{"10.0.0.0/8", "192.168.1.1"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		trusted []*net.IPNet
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxies configured", nil, "203.0.113.7:4000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.7:4000"},
		{"untrusted peer", trusted, "203.0.113.7:4000", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "203.0.113.7:4000"},
		{"trusted peer", trusted, "10.1.2.3:4000", map[string]string{"X-Forwarded-For": "198.51.100.9"}, "198.51.100.9"},
		{"rightmost untrusted hop", trusted, "10.1.2.3:4000", map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.9, 10.0.0.5"}, "198.51.100.9"},
		{"all hops trusted", trusted, "192.168.1.1:4000", map[string]string{"X-Forwarded-For": "10.0.0.9, 10.0.0.5"}, "10.0.0.9"},
		{"garbage hop", trusted, "10.1.2.3:4000", map[string]string{"X-Forwarded-For": "1.2.3.4, nonsense"}, "10.1.2.3:4000"},
		{"real ip header", trusted, "10.1.2.3:4000", map[string]string{"X-Real-IP": "198.51.100.20"}, "198.51.100.20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := RealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseNetworks(t *testing.T) {
	nets, err := ParseNetworks([]string{"10.0.0.0/8", " ::1 ", "", "192.168.0.1"})
	require.NoError(t, err)
	assert.Len(t, nets, 3)

	_, err = ParseNetworks([]string{"10.0.0.0/99"})
	assert.Error(t, err)
	_, err = ParseNetworks([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestLoggerKeepsStatus(t *testing.T) {
	h := Logger(discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)
}
