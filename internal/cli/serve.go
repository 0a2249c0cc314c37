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

package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey-auth/internal/server"
)

// serveCmd runs the HTTP server until SIGINT or SIGTERM. SIGHUP reloads
// the configuration file.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the authentication server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := server.SetupSignalHandler()
		srv, err := server.New(ctx, cfg)
		if err != nil {
			return err
		}
		if err := srv.Start(); err != nil {
			return err
		}

		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		for {
			select {
			case <-hup:
				reload(srv)
			case err := <-srv.Errors():
				_ = srv.Shutdown()
				return err
			case <-ctx.Done():
				return shutdown(srv)
			}
		}
	},
}

func reload(srv *server.Server) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to reload configuration", slog.Any("error", err))
		return
	}
	if err := srv.Reload(cfg); err != nil {
		slog.Error("Failed to apply configuration", slog.Any("error", err))
	}
}

func shutdown(srv *server.Server) error {
	done := make(chan error, 1)
	go func() { done <- srv.Shutdown() }()

	// A second signal aborts a slow shutdown.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-done:
		return err
	case <-sig:
		return context.Canceled
	}
}
