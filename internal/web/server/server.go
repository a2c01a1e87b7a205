package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/foxzi/techsupport/internal/metrics"
	"github.com/foxzi/techsupport/internal/web/auth"
	"github.com/foxzi/techsupport/internal/web/config"
	"github.com/foxzi/techsupport/internal/web/handlers"
	"github.com/foxzi/techsupport/internal/web/middleware"
	"github.com/foxzi/techsupport/internal/web/provider"
	"github.com/foxzi/techsupport/internal/web/reports"
	"github.com/foxzi/techsupport/internal/web/store"
	"github.com/foxzi/techsupport/internal/web/views"
)

// sweepInterval is how often expired sessions are purged
const sweepInterval = 10 * time.Minute

type Server struct {
	cfg      *config.Config
	proxies  []*net.IPNet
	logger   *slog.Logger
	data     *provider.Provider
	auth     *auth.Manager
	views    *views.Engine
	metrics  *metrics.Metrics
	handlers *handlers.Handlers
	http     *http.Server
}

// New wires every component. The store is not opened until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	viewEngine, err := views.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize views: %w", err)
	}

	proxies, err := middleware.ParseNetworks(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	m := metrics.New()
	metrics.SetGlobal(m)

	data := provider.New(provider.Config{
		StorePath:      cfg.Store.Path,
		ProjectID:      cfg.Store.ProjectID,
		ConnectTimeout: cfg.Store.ConnectTimeout,
		Seed:           cfg.Store.SeedEnabled(),
		PasswordCost:   bcrypt.DefaultCost,
	}, nil, logger)

	s := &Server{
		cfg:     cfg,
		proxies: proxies,
		logger:  logger,
		data:    data,
		views:   viewEngine,
		metrics: m,
	}

	s.auth = auth.NewManager(auth.Options{
		CookieName:   cfg.Auth.CookieName,
		SessionTTL:   cfg.Auth.SessionTTL,
		LoginRate:    cfg.Auth.LoginRate,
		SecureCookie: cfg.Server.TLS.Enabled,
	}, data.UserByEmail, s.sessions, logger)

	reportService := reports.NewService(data, reports.NewClient(cfg.Reports.Timeout, cfg.Reports.UserAgent), logger)
	s.handlers = handlers.New(data, s.auth, reportService, viewEngine, logger)

	s.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// sessions refuses session access unless the provider is connected
func (s *Server) sessions() (auth.SessionStore, error) {
	if !s.data.Connected() {
		return nil, provider.ErrDatabaseUnavailable
	}
	st, err := s.data.Documents()
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (s *Server) setupRoutes() http.Handler {
	h := s.handlers
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RealIP(s.proxies))
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logger(s.logger))
	r.Use(metrics.HTTPMiddleware)

	// Public routes
	r.Get("/health", h.Health)
	r.Get("/api/status", h.Status)
	r.With(middleware.RedirectAuthenticated(s.auth)).Get(middleware.LoginPath, h.LoginPage)
	r.Post(middleware.LoginPath, h.Login)
	r.Get("/logout", h.Logout)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(s.auth, s.logger))

		r.Get("/", h.Dashboard)
		r.Get("/api/live", h.Live)

		r.Route("/api/admin", func(r chi.Router) {
			for _, res := range h.Resources() {
				r.Get("/"+res.Path, res.List)
				r.Post("/"+res.Path, res.Create)
				r.Put("/"+res.Path+"/{id}", res.Update)
				r.Delete("/"+res.Path+"/{id}", res.Delete)
			}
			r.Post("/connection-test", h.ConnectionTest)
		})

		r.Get("/api/environments/{id}/organizations", h.EnvironmentOrganizations)
		r.Get("/api/organizations/{id}/org-paths", h.OrganizationOrgPaths)

		r.Post("/api/reports/{operation}/preview", h.ReportPreview)
		r.Post("/api/reports/{operation}/send", h.ReportSend)
	})

	return r
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Provider returns the data provider
func (s *Server) Provider() *provider.Provider {
	return s.data
}

// Run starts the provider, the web listener and the optional metrics
// listener, and blocks until ctx is cancelled or a listener fails. A store
// that cannot be reached does not stop the server: the failure is shown
// through the status endpoint instead.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.data.Start(gctx); err != nil {
			s.logger.Error("data provider failed to start", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		return s.serveHTTP(gctx)
	})

	g.Go(func() error {
		s.sweepSessions(gctx)
		return nil
	})

	if s.cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(s.metrics, s.cfg.Metrics.ListenAddr, s.cfg.Metrics.Path, s.cfg.Metrics.AllowedIPs, s.logger)
		g.Go(func() error {
			return metricsServer.Run(gctx)
		})
		g.Go(func() error {
			s.collectMetrics(gctx)
			return nil
		})
	}

	err := g.Wait()
	if cerr := s.data.Close(); cerr != nil {
		s.logger.Error("failed to close store", "error", cerr)
	}
	return err
}

func (s *Server) serveHTTP(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting web server", "addr", s.cfg.Server.ListenAddr, "tls", s.cfg.Server.TLS.Enabled)
		if s.cfg.Server.TLS.Enabled {
			errCh <- s.http.ListenAndServeTLS(s.cfg.Server.TLS.CertFile, s.cfg.Server.TLS.KeyFile)
		} else {
			errCh <- s.http.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "error", err)
	}
	return nil
}

// collectMetrics samples document counts once the store is connected
func (s *Server) collectMetrics(ctx context.Context) {
	if err := s.data.WaitConnected(ctx); err != nil {
		return
	}
	collector := metrics.NewCollector(s.metrics, s.data.Counter(), store.EntityCollections, s.cfg.Store.Path, 0, s.logger)
	collector.Start(ctx)
	<-ctx.Done()
	collector.Stop()
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.data.Connected() {
				continue
			}
			if _, err := s.auth.Sweep(ctx); err != nil {
				s.logger.Warn("session sweep failed", "error", err)
			}
		}
	}
}
