// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey-auth.
//
// go-passkey-auth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-auth/pkg/correlation"
	"github.com/jeremyhahn/go-passkey-auth/pkg/metrics"
	"github.com/jeremyhahn/go-passkey-auth/pkg/ratelimit"
	webauthnhttp "github.com/jeremyhahn/go-passkey-auth/pkg/webauthn/http"
)

// ChallengePruner removes expired WebAuthn challenges.
type ChallengePruner interface {
	PruneChallenges(ctx context.Context) (int64, error)
}

// Server represents the REST API server.
type Server struct {
	server        *http.Server
	auth          AuthService
	authenticator auth.Authenticator
	limiter       *ratelimit.Limiter
	pruner        ChallengePruner
	pruneInterval time.Duration
	tlsConfig     *tls.Config
	logger        logger.Logger
	stopPruner    context.CancelFunc
}

// Config holds the REST server configuration.
type Config struct {
	// Addr is the listen address (default: ":8000")
	Addr string

	// Auth serves accounts, tokens and passkeys (required)
	Auth AuthService

	// Authenticator validates bearer tokens on protected routes (required)
	Authenticator auth.Authenticator

	// RateLimiter throttles credential endpoints (optional)
	RateLimiter *ratelimit.Limiter

	// Pruner removes expired challenges every PruneInterval (optional)
	Pruner        ChallengePruner
	PruneInterval time.Duration

	// MetricsPath serves Prometheus metrics when non-empty
	MetricsPath string

	// CORSOrigins lists allowed browser origins (optional)
	CORSOrigins []string

	// TLSConfig is the TLS configuration for HTTPS (optional)
	TLSConfig *tls.Config

	// Logger is the logging adapter (optional)
	Logger logger.Logger

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("authenticator is required")
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = 5 * time.Minute
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}

	s := &Server{
		auth:          cfg.Auth,
		authenticator: cfg.Authenticator,
		limiter:       limiter,
		pruner:        cfg.Pruner,
		pruneInterval: cfg.PruneInterval,
		tlsConfig:     cfg.TLSConfig,
		logger:        log,
	}

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.setupRouter(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    cfg.TLSConfig,
	}

	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter(cfg *Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(correlation.Middleware)
	r.Use(s.LoggingMiddleware())
	r.Use(metrics.HTTPMiddleware)
	r.Use(chimw.CleanPath)
	r.Use(CORSMiddleware(cfg.CORSOrigins))

	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, metrics.Handler())
	}

	requireAuth := auth.HTTPMiddleware(s.authenticator, func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.DebugContext(r.Context(), "Authentication failed",
			logger.String("path", r.URL.Path),
			logger.Error(err))
		s.handleError(w, r, ErrUnauthorized)
	})
	throttle := ratelimit.Middleware(s.limiter, func(w http.ResponseWriter, r *http.Request) {
		s.handleError(w, r, ErrRateLimited)
	})

	passkeys := webauthnhttp.NewHandler(webauthnhttp.Options{
		Ceremonies:   s.auth,
		Subject:      auth.SubjectFromRequest,
		ErrorHandler: s.handleError,
		Logger:       s.logger,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(throttle)
			r.Post("/register", s.RegisterHandler)
			r.Post("/login", s.LoginHandler)
			r.Post("/refresh", s.RefreshHandler)
		})

		r.With(requireAuth).Get("/users/me", s.MeHandler)

		r.Route("/webauthn", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/register/options", passkeys.RegistrationOptions)
				r.Post("/register/verify", passkeys.VerifyRegistration)
			})
			r.Get("/authenticate/options", passkeys.AuthenticationOptions)
			r.With(throttle).Post("/authenticate/verify", passkeys.VerifyAuthentication)
		})
	})

	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the challenge pruner and serves until Stop is called.
func (s *Server) Start() error {
	if s.pruner != nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopPruner = cancel
		go s.runPruner(ctx)
	}

	var err error
	if s.tlsConfig != nil {
		s.logger.Info("Starting HTTPS server", logger.String("addr", s.server.Addr))
		err = s.server.ListenAndServeTLS("", "")
	} else {
		s.logger.Info("Starting HTTP server", logger.String("addr", s.server.Addr))
		err = s.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	if s.stopPruner != nil {
		s.stopPruner()
	}
	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server", logger.Error(err))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("Server stopped")
	return nil
}

func (s *Server) runPruner(ctx context.Context) {
	ticker := time.NewTicker(s.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pruneOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) pruneOnce(ctx context.Context) {
	n, err := s.pruner.PruneChallenges(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to prune challenges", logger.Error(err))
		return
	}
	metrics.RecordChallengesPruned(n)
	if n > 0 {
		s.logger.DebugContext(ctx, "Pruned expired challenges", logger.Int64("count", n))
	}
}
