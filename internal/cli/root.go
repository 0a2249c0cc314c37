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

// Package cli implements the passkey-auth command line.
package cli

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jeremyhahn/go-passkey-auth/internal/config"
)

// Flag and viper keys shared by every command.
const (
	keyConfig   = "config"
	keyLogLevel = "log-level"
	keyListen   = "listen"
	keyOutput   = "output"
)

var v = viper.New()

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "passkey-auth",
	Short: "passkey-auth - password and passkey authentication server",
	Long: `passkey-auth serves account registration, password login, JWT refresh
and WebAuthn passkey ceremonies over a JSON HTTP API.

Configuration is read from the file given by --config and from AUTH_*
environment variables. Flags override both.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String(keyConfig, "", "config file (env AUTH_CONFIG)")
	flags.String(keyLogLevel, "", "log level override (debug, info, warn, error)")
	flags.String(keyListen, "", "listen address override, host:port")
	flags.StringP(keyOutput, "o", "text", "output format (text, json)")

	for _, key := range []string{keyConfig, keyLogLevel, keyListen, keyOutput} {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}
	v.SetEnvPrefix(strings.TrimSuffix(config.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(hashPasswordCmd)
}

// loadConfig loads the configuration file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v.GetString(keyConfig))
	if err != nil {
		return nil, err
	}
	if err := applyOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyOverrides(cfg *config.Config) error {
	if level := v.GetString(keyLogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if listen := v.GetString(keyListen); listen != "" {
		host, port, err := net.SplitHostPort(listen)
		if err != nil {
			return fmt.Errorf("invalid --listen address %q: %w", listen, err)
		}
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid --listen port %q", port)
		}
		if host != "" {
			cfg.Server.Host = host
		}
		cfg.Server.Port = p
	}
	return nil
}

func newPrinter(cmd *cobra.Command) *Printer {
	return NewPrinter(v.GetString(keyOutput), cmd.OutOrStdout())
}

// HandleError prints an error and exits with code 1
func HandleError(err error) {
	printer := NewPrinter(v.GetString(keyOutput), os.Stderr)
	_ = printer.PrintError(err)
	os.Exit(1)
}
