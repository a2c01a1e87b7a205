package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/foxzi/techsupport/internal/web/auth"
	"github.com/foxzi/techsupport/internal/web/provider"
)

type loginPage struct {
	pageData
	Email string
}

// LoginPage renders the login page
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, "login", loginPage{pageData: h.page(r)})
}

// Login handles login form submission
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderLoginError(w, r, http.StatusBadRequest, "", "Invalid form data")
		return
	}

	email := r.FormValue("email")
	password := r.FormValue("password")

	if !h.data.Connected() {
		h.renderLoginError(w, r, http.StatusServiceUnavailable, email, provider.ErrDatabaseUnavailable.Error())
		return
	}

	sess, err := h.auth.Login(r.Context(), email, password, clientIP(r))
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.renderLoginError(w, r, http.StatusUnauthorized, email, auth.InvalidCredentialsMessage)
		return
	case errors.Is(err, auth.ErrRateLimited):
		h.renderLoginError(w, r, http.StatusTooManyRequests, email, auth.RateLimitedMessage)
		return
	case errors.Is(err, provider.ErrDatabaseUnavailable):
		h.renderLoginError(w, r, http.StatusServiceUnavailable, email, err.Error())
		return
	default:
		h.logger.Error("login failed", "email", email, "error", err)
		h.renderLoginError(w, r, http.StatusInternalServerError, email, "Login failed. Please try again.")
		return
	}

	h.auth.SetCookie(w, sess)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// Logout handles user logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), h.auth.SessionID(r)); err != nil {
		h.logger.Warn("failed to remove session", "error", err)
	}
	h.auth.ClearCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handlers) renderLoginError(w http.ResponseWriter, r *http.Request, status int, email, message string) {
	data := loginPage{pageData: h.page(r), Email: email}
	data.Error = message
	h.render(w, status, "login", data)
}

// clientIP returns the request address. middleware.RealIP has already
// applied forwarding headers from trusted proxies.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
