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

// Package config loads the server configuration from YAML with AUTH_*
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-passkey-auth/pkg/ratelimit"
	"github.com/jeremyhahn/go-passkey-auth/pkg/storage/postgres"
	redisstore "github.com/jeremyhahn/go-passkey-auth/pkg/storage/redis"
	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUTH_"

// Challenge store backends.
const (
	ChallengeBackendMemory   = "memory"
	ChallengeBackendPostgres = "postgres"
	ChallengeBackendRedis    = "redis"
)

// Config represents the complete server configuration
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	TLS        TLSConfig         `yaml:"tls"`
	Logging    LoggingConfig     `yaml:"logging"`
	Database   postgres.Config   `yaml:"database"`
	Redis      redisstore.Config `yaml:"redis"`
	Challenges ChallengeConfig   `yaml:"challenges"`
	Token      token.Config      `yaml:"token"`
	Password   PasswordConfig    `yaml:"password"`
	WebAuthn   webauthn.Config   `yaml:"webauthn"`
	RateLimit  ratelimit.Config  `yaml:"ratelimit"`
	Metrics    MetricsConfig     `yaml:"metrics"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string `yaml:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ChallengeConfig selects where pending WebAuthn challenges live.
type ChallengeConfig struct {
	// Backend is memory, postgres or redis. Default: postgres when a
	// database DSN is set, otherwise memory.
	Backend string `yaml:"backend"`

	// CleanupInterval controls how often expired challenges are pruned.
	// Redis expires keys itself and ignores it.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// PasswordConfig controls password hashing
type PasswordConfig struct {
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int `yaml:"bcrypt_cost"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads configuration from a YAML file, applies environment variable
// overrides and defaults, and validates the result. An empty path skips
// the file and relies on the environment alone.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	envString("HOST", &cfg.Server.Host)
	envPort("PORT", &cfg.Server.Port)

	envString("LOG_LEVEL", &cfg.Logging.Level)
	envString("LOG_FORMAT", &cfg.Logging.Format)

	envString("DATABASE_DSN", &cfg.Database.DSN)
	envBool("DATABASE_MIGRATE", &cfg.Database.MigrateOnStart)
	envString("REDIS_URL", &cfg.Redis.URL)
	envString("CHALLENGE_BACKEND", &cfg.Challenges.Backend)

	envString("TOKEN_SECRET", &cfg.Token.Secret)
	envString("TOKEN_ISSUER", &cfg.Token.Issuer)
	envDuration("ACCESS_TOKEN_TTL", &cfg.Token.AccessTTL)
	envDuration("REFRESH_TOKEN_TTL", &cfg.Token.RefreshTTL)

	envString("WEBAUTHN_RP_ID", &cfg.WebAuthn.RPID)
	envString("WEBAUTHN_RP_NAME", &cfg.WebAuthn.RPDisplayName)
	if origins := os.Getenv(EnvPrefix + "WEBAUTHN_RP_ORIGINS"); origins != "" {
		cfg.WebAuthn.RPOrigins = splitList(origins)
	}

	envBool("RATELIMIT_ENABLED", &cfg.RateLimit.Enabled)
	envBool("METRICS_ENABLED", &cfg.Metrics.Enabled)
}

func envString(name string, dst *string) {
	if v := os.Getenv(EnvPrefix + name); v != "" {
		*dst = v
	}
}

func envBool(name string, dst *bool) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid %s%s value %q, keeping %t: %v", EnvPrefix, name, v, *dst, err)
		return
	}
	*dst = b
}

func envPort(name string, dst *int) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	port, err := strconv.Atoi(v)
	if err != nil || port < 1 || port > 65535 {
		log.Printf("Warning: invalid %s%s value %q (must be 1-65535), keeping %d", EnvPrefix, name, v, *dst)
		return
	}
	*dst = port
}

func envDuration(name string, dst *time.Duration) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid %s%s value %q, keeping %s: %v", EnvPrefix, name, v, *dst, err)
		return
	}
	*dst = d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// SetDefaults sets default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 15 * time.Second
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Challenges.Backend == "" {
		c.Challenges.Backend = ChallengeBackendMemory
		if c.Database.DSN != "" {
			c.Challenges.Backend = ChallengeBackendPostgres
		}
	}
	if c.Challenges.CleanupInterval == 0 {
		c.Challenges.CleanupInterval = 5 * time.Minute
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	c.Token.SetDefaults()
	c.WebAuthn.SetDefaults()
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" {
			return errors.New("TLS cert_file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return errors.New("TLS key_file is required when TLS is enabled")
		}
	}

	switch c.Challenges.Backend {
	case ChallengeBackendMemory:
	case ChallengeBackendPostgres:
		if c.Database.DSN == "" {
			return errors.New("database dsn is required for the postgres challenge backend")
		}
	case ChallengeBackendRedis:
		if c.Redis.URL == "" {
			return errors.New("redis url is required for the redis challenge backend")
		}
	default:
		return fmt.Errorf("invalid challenge backend: %s (must be memory, postgres, or redis)", c.Challenges.Backend)
	}

	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if err := c.WebAuthn.Validate(); err != nil {
		return fmt.Errorf("webauthn: %w", err)
	}
	return nil
}
