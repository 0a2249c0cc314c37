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

package server

import (
	"fmt"
	"log/slog"

	"github.com/jeremyhahn/go-passkey-auth/internal/config"
)

// Reload applies the parts of cfg that can change without a restart.
// Only the log level is reloadable; other changes are logged and ignored
// until the next start.
func (s *Server) Reload(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Reloading server configuration...")

	if cfg.Logging.Level != s.config.Logging.Level {
		s.level.Set(parseLevel(cfg.Logging.Level))
		s.logger.Info("Log level updated",
			slog.String("old_level", s.config.Logging.Level),
			slog.String("new_level", cfg.Logging.Level))
		s.config.Logging.Level = cfg.Logging.Level
	}

	if cfg.Logging.Format != s.config.Logging.Format {
		s.logger.Warn("Log format changes require a restart",
			slog.String("current", s.config.Logging.Format),
			slog.String("requested", cfg.Logging.Format))
	}
	if cfg.Server.Addr() != s.config.Server.Addr() {
		s.logger.Warn("Listen address changes require a restart",
			slog.String("current", s.config.Server.Addr()),
			slog.String("requested", cfg.Server.Addr()))
	}

	return nil
}

// LogLevel returns the active log level.
func (s *Server) LogLevel() slog.Level {
	return s.level.Level()
}
