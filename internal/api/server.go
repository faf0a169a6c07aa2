// Package api provides the HTTP server for the mailroom front end: the
// email routes, the OAuth routes and their middleware.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mailroom/mailroom/internal/auth"
	"github.com/mailroom/mailroom/internal/config"
	"github.com/mailroom/mailroom/internal/mailbox"
)

// Authenticator is the part of auth.Manager the OAuth routes need.
type Authenticator interface {
	Configured() bool
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Credential, error)
}

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	auth        Authenticator
	sessions    *auth.Sessions
	mailboxes   *mailbox.Registry
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
	newState    func() string
}

// NewServer creates a new API server. sessions resolves cookie credentials
// and mailboxes hands out one mailbox Service per identity.
func NewServer(cfg *config.Config, authn Authenticator, sessions *auth.Sessions, mailboxes *mailbox.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		auth:      authn,
		sessions:  sessions,
		mailboxes: mailboxes,
		logger:    logger,
		newState:  newOAuthState,
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	// CORS is disabled when no origins are configured.
	r.Use(CORSMiddleware(DefaultCORSConfig(s.cfg.Server.CORSOrigins)))

	if s.cfg.Server.RateLimitRPS > 0 {
		s.rateLimiter = NewRateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst)
		r.Use(RateLimitMiddleware(s.rateLimiter))
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Get("/login", s.handleLogin)
		r.Get("/callback", s.handleCallback)
		r.Post("/logout", s.handleLogout)
		r.Get("/token", s.handleToken)
		r.Get("/check", s.handleCheck)
		r.Get("/session", s.handleSession)
	})

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get("/api/emails", s.handleListEmails)
		r.Post("/api/emails", s.handleModifyEmail)
		r.Get("/api/emails/{id}", s.handleGetEmail)
		r.Get("/api/emails/{id}/content", s.handleGetContent)
		r.Get("/api/emails/{id}/attachments", s.handleListAttachments)
		r.Post("/api/emails/{id}/important", s.handleToggleImportant)
		r.Post("/api/emails/{id}/read", s.handleToggleRead)
		r.Post("/api/emails/{id}/delete", s.handleDelete)

		r.Get("/api/labels", s.handleListLabels)
	})

	return r
}

// Start begins listening for HTTP requests. It blocks until the server
// stops and returns http.ErrServerClosed after Shutdown.
func (s *Server) Start() error {
	addr := s.cfg.Addr()

	if !s.auth.Configured() {
		s.logger.Warn("OAuth client not configured; set GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET and GOOGLE_REDIRECT_URI")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// PruneRateLimits drops per-client limiters idle for longer than idle.
func (s *Server) PruneRateLimits(idle time.Duration) int {
	if s.rateLimiter == nil {
		return 0
	}
	return s.rateLimiter.Prune(idle)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
