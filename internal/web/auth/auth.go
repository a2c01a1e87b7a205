// Package auth implements the single shared login gate: password check,
// browser-session cookies backed by the document store, and login
// throttling per client address.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/foxzi/techsupport/internal/metrics"
	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrNoSession          = errors.New("no valid session")
)

// Messages shown on the login page
const (
	InvalidCredentialsMessage = "Invalid email or password. Please try again."
	RateLimitedMessage        = "Too many login attempts. Please wait a minute and try again."
)

// SessionStore persists session records
type SessionStore interface {
	Insert(ctx context.Context, collection string, record any) (string, error)
	Get(ctx context.Context, collection, id string) (store.Document, error)
	List(ctx context.Context, collection string) ([]store.Document, error)
	Remove(ctx context.Context, collection, id string) error
}

// UserLookup finds a user by exact email
type UserLookup func(email string) (models.User, bool)

// SessionSource returns the session store, or an error while the store is
// unavailable
type SessionSource func() (SessionStore, error)

// Session is a logged-in browser session
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at t
func (s Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}

// Options configures the Manager
type Options struct {
	CookieName string
	SessionTTL time.Duration
	// LoginRate is the number of attempts per minute per client; 0 disables throttling
	LoginRate    int
	SecureCookie bool
}

// Manager creates and checks sessions
type Manager struct {
	opts     Options
	users    UserLookup
	sessions SessionSource
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*clientLimiter
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewManager creates a session manager
func NewManager(opts Options, users UserLookup, sessions SessionSource, logger *slog.Logger) *Manager {
	if opts.CookieName == "" {
		opts.CookieName = "techsupport_session"
	}
	if opts.SessionTTL == 0 {
		opts.SessionTTL = 12 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		opts:     opts,
		users:    users,
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*clientLimiter),
	}
}

// CookieName returns the name of the session cookie
func (m *Manager) CookieName() string {
	return m.opts.CookieName
}

// Login checks the credentials and opens a new session
func (m *Manager) Login(ctx context.Context, email, password, clientIP string) (Session, error) {
	if !m.allow(clientIP) {
		metrics.IncRateLimitExceeded()
		m.logger.Warn("login rate limit exceeded", "ip", clientIP)
		return Session{}, ErrRateLimited
	}

	user, ok := m.users(email)
	if !ok || user.PasswordHash == "" {
		metrics.IncLoginAttempts("failure")
		return Session{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		metrics.IncLoginAttempts("failure")
		return Session{}, ErrInvalidCredentials
	}

	st, err := m.sessions()
	if err != nil {
		return Session{}, err
	}

	now := m.now().UTC()
	sess := Session{
		UserID:    user.ID,
		Email:     user.Email,
		CreatedAt: now,
		ExpiresAt: now.Add(m.opts.SessionTTL),
	}
	id, err := st.Insert(ctx, store.CollectionSessions, sess)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	sess.ID = id

	metrics.IncLoginAttempts("success")
	m.logger.Info("user logged in", "email", user.Email)
	return sess, nil
}

// Authenticate returns the session with the given id if it is still valid.
// Expired sessions are removed.
func (m *Manager) Authenticate(ctx context.Context, id string) (Session, error) {
	if id == "" {
		return Session{}, ErrNoSession
	}

	st, err := m.sessions()
	if err != nil {
		return Session{}, err
	}

	doc, err := st.Get(ctx, store.CollectionSessions, id)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrNoSession
	}
	if err != nil {
		return Session{}, err
	}

	var sess Session
	if err := doc.Decode(&sess); err != nil {
		return Session{}, err
	}
	if sess.Expired(m.now()) {
		if err := st.Remove(ctx, store.CollectionSessions, id); err != nil {
			m.logger.Warn("failed to remove expired session", "error", err)
		}
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Logout removes the session
func (m *Manager) Logout(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	st, err := m.sessions()
	if err != nil {
		return err
	}
	return st.Remove(ctx, store.CollectionSessions, id)
}

// Sweep removes expired sessions and idle rate limiters
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	m.sweepLimiters()

	st, err := m.sessions()
	if err != nil {
		return 0, err
	}
	docs, err := st.List(ctx, store.CollectionSessions)
	if err != nil {
		return 0, err
	}

	now := m.now()
	removed := 0
	for _, doc := range docs {
		var sess Session
		if err := doc.Decode(&sess); err != nil || sess.Expired(now) {
			if err := st.Remove(ctx, store.CollectionSessions, doc.ID); err != nil {
				return removed, err
			}
			removed++
		}
	}
	if removed > 0 {
		m.logger.Debug("expired sessions removed", "count", removed)
	}
	return removed, nil
}

// SetCookie writes the session cookie. It has no Expires attribute, so the
// browser drops it when the browsing session ends.
func (m *Manager) SetCookie(w http.ResponseWriter, sess Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    sess.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie removes the session cookie from the browser
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.opts.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionID returns the session id carried by the request, if any
func (m *Manager) SessionID(r *http.Request) string {
	c, err := r.Cookie(m.opts.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (m *Manager) allow(clientIP string) bool {
	if m.opts.LoginRate <= 0 {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cl, ok := m.limiters[clientIP]
	if !ok {
		perAttempt := time.Minute / time.Duration(m.opts.LoginRate)
		cl = &clientLimiter{limiter: rate.NewLimiter(rate.Every(perAttempt), m.opts.LoginRate)}
		m.limiters[clientIP] = cl
	}
	cl.lastSeen = m.now()
	return cl.limiter.Allow()
}

func (m *Manager) sweepLimiters() {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-5 * time.Minute)
	for ip, cl := range m.limiters {
		if cl.lastSeen.Before(cutoff) {
			delete(m.limiters, ip)
		}
	}
}

type ctxKey struct{}

// WithSession stores the session in the context
func WithSession(ctx context.Context, sess Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, sess)
}

// FromContext returns the session stored by WithSession
func FromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(ctxKey{}).(Session)
	return sess, ok
}
