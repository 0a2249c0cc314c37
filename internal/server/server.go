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

// Package server assembles the authentication service from configuration
// and runs it until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jeremyhahn/go-passkey-auth/internal/config"
	"github.com/jeremyhahn/go-passkey-auth/internal/password"
	"github.com/jeremyhahn/go-passkey-auth/internal/rest"
	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-auth/pkg/authn"
	"github.com/jeremyhahn/go-passkey-auth/pkg/metrics"
	"github.com/jeremyhahn/go-passkey-auth/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey-auth/pkg/storage/postgres"
	redisstore "github.com/jeremyhahn/go-passkey-auth/pkg/storage/redis"
	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
	"github.com/jeremyhahn/go-passkey-auth/pkg/user"
	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

// Server owns the storage connections, the services and the REST server.
type Server struct {
	config *config.Config
	mu     sync.RWMutex
	level  *slog.LevelVar
	logger *slog.Logger
	log    logger.Logger

	db    *sql.DB
	redis *goredis.Client

	auth       *authn.Service
	ceremonies *webauthn.Service
	restServer *rest.Server

	stopCollector context.CancelFunc

	wg         sync.WaitGroup
	errCh      chan error
	shutdownCh chan struct{}
}

// Option customizes a Server.
type Option func(*Server)

// WithLogOutput sends log output to w instead of stdout.
func WithLogOutput(w io.Writer) Option {
	return func(s *Server) {
		s.logger = newSlogLogger(s.config.Logging, s.level, w)
	}
}

// New creates a server from cfg. Storage is opened and, when configured,
// migrated before New returns.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	s := &Server{
		config:     cfg,
		level:      new(slog.LevelVar),
		errCh:      make(chan error, 1),
		shutdownCh: make(chan struct{}),
	}
	s.level.Set(parseLevel(cfg.Logging.Level))
	s.logger = newSlogLogger(cfg.Logging, s.level, os.Stdout)
	for _, opt := range opts {
		opt(s)
	}
	s.log = logger.NewSlogAdapter(&logger.SlogConfig{Logger: s.logger})

	if cfg.Metrics.Enabled {
		metrics.Enable()
	} else {
		metrics.Disable()
	}

	if err := s.initialize(ctx); err != nil {
		s.closeStorage()
		return nil, err
	}
	return s, nil
}

func (s *Server) initialize(ctx context.Context) error {
	users, credentials, err := s.initializeStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	challenges, err := s.initializeChallengeStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize challenge store: %w", err)
	}

	hasher, err := password.NewHasher(s.config.Password.BcryptCost)
	if err != nil {
		return fmt.Errorf("failed to create password hasher: %w", err)
	}

	tokens, err := token.NewIssuer(&s.config.Token)
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	s.ceremonies, err = webauthn.NewService(webauthn.ServiceParams{
		Config:      &s.config.WebAuthn,
		Credentials: credentials,
		Challenges:  challenges,
		Logger:      s.log,
	})
	if err != nil {
		return fmt.Errorf("failed to create webauthn service: %w", err)
	}

	s.auth, err = authn.NewService(authn.Params{
		Users:      users,
		Hasher:     hasher,
		Tokens:     tokens,
		Ceremonies: s.ceremonies,
		Logger:     s.log,
		Audit:      audit.NewLogAuditAdapter(s.log),
	})
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	bearer, err := auth.NewBearerAuthenticator(&auth.BearerConfig{Verifier: tokens})
	if err != nil {
		return fmt.Errorf("failed to create bearer authenticator: %w", err)
	}

	tlsConfig, err := s.config.TLS.LoadTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to load TLS configuration: %w", err)
	}

	metricsPath := ""
	if s.config.Metrics.Enabled {
		metricsPath = s.config.Metrics.Path
	}

	restConfig := &rest.Config{
		Addr:          s.config.Server.Addr(),
		Auth:          s.auth,
		Authenticator: bearer,
		RateLimiter:   ratelimit.New(&s.config.RateLimit),
		PruneInterval: s.config.Challenges.CleanupInterval,
		MetricsPath:   metricsPath,
		CORSOrigins:   s.config.Server.CORSOrigins,
		TLSConfig:     tlsConfig,
		Logger:        s.log,
		ReadTimeout:   s.config.Server.ReadTimeout,
		WriteTimeout:  s.config.Server.WriteTimeout,
		IdleTimeout:   s.config.Server.IdleTimeout,
	}
	if s.config.Challenges.Backend != config.ChallengeBackendRedis {
		restConfig.Pruner = s.ceremonies
	}

	s.restServer, err = rest.NewServer(restConfig)
	if err != nil {
		return fmt.Errorf("failed to create REST server: %w", err)
	}
	return nil
}

// initializeStorage returns the Postgres repositories when a DSN is
// configured and in-memory stores otherwise.
func (s *Server) initializeStorage(ctx context.Context) (user.Directory, webauthn.CredentialStore, error) {
	if s.config.Database.DSN == "" {
		s.logger.Warn("No database configured, accounts are kept in memory")
		return user.NewMemoryDirectory(), webauthn.NewMemoryCredentialStore(), nil
	}

	db, err := postgres.Open(ctx, &s.config.Database)
	if err != nil {
		return nil, nil, err
	}
	s.db = db

	if s.config.Database.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		version, err := postgres.SchemaVersion(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info("Database migrated", slog.Int64("version", version))
	}

	return postgres.NewUserRepository(db), postgres.NewCredentialRepository(db), nil
}

func (s *Server) initializeChallengeStore(ctx context.Context) (webauthn.ChallengeStore, error) {
	backend := s.config.Challenges.Backend
	s.logger.Info("Initializing challenge store", slog.String("backend", backend))

	switch backend {
	case config.ChallengeBackendMemory:
		return webauthn.NewMemoryChallengeStore(), nil
	case config.ChallengeBackendPostgres:
		if s.db == nil {
			return nil, errors.New("postgres challenge backend requires a database")
		}
		return postgres.NewChallengeRepository(s.db), nil
	case config.ChallengeBackendRedis:
		client, err := redisstore.Connect(ctx, &s.config.Redis)
		if err != nil {
			return nil, err
		}
		s.redis = client
		return redisstore.NewChallengeStore(client, s.config.Redis.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown challenge backend: %s", backend)
	}
}

// Start starts the REST server in the background. Serve errors are
// reported on Errors.
func (s *Server) Start() error {
	s.logger.Info("Starting auth server",
		slog.String("addr", s.config.Server.Addr()),
		slog.String("version", getBuildVersion()),
		slog.String("challenge_backend", s.config.Challenges.Backend),
		slog.Bool("metrics", s.config.Metrics.Enabled))

	if s.config.Metrics.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		s.stopCollector = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			metrics.NewResourceCollector(0).Run(ctx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.restServer.Start(); err != nil {
			s.logger.Error("REST server failed", slog.Any("error", err))
			select {
			case s.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// Errors reports fatal serve errors.
func (s *Server) Errors() <-chan error {
	return s.errCh
}

// Shutdown stops the REST server and closes storage connections.
func (s *Server) Shutdown() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if s.stopCollector != nil {
		s.stopCollector()
	}

	var shutdownErr error
	if s.restServer != nil {
		if err := s.restServer.Stop(ctx); err != nil {
			s.logger.Error("Error shutting down REST server", slog.Any("error", err))
			shutdownErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout exceeded, forcing stop")
	}

	s.closeStorage()
	close(s.shutdownCh)
	s.logger.Info("Server shutdown complete")
	return shutdownErr
}

func (s *Server) closeStorage() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Error closing redis client", slog.Any("error", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database", slog.Any("error", err))
		}
	}
}

// WaitForShutdown blocks until the server is shut down
func (s *Server) WaitForShutdown() {
	<-s.shutdownCh
}

// AuthService returns the authentication service.
func (s *Server) AuthService() *authn.Service {
	return s.auth
}

// RESTServer returns the REST server instance
func (s *Server) RESTServer() *rest.Server {
	return s.restServer
}

// SetupSignalHandler returns a context that is canceled on SIGINT or SIGTERM.
func SetupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		slog.Info("Received shutdown signal")
		cancel()
	}()

	return ctx
}

func newSlogLogger(cfg config.LoggingConfig, level *slog.LevelVar, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// getBuildVersion returns the VCS revision or module version embedded by
// the Go toolchain.
func getBuildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}

	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			if len(setting.Value) >= 7 {
				return setting.Value[:7]
			}
			return setting.Value
		}
	}

	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
