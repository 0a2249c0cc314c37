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
	"bufio"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-passkey-auth/internal/password"
)

// hashPasswordCmd prints a bcrypt hash for seeding accounts by hand.
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Hash a password read from stdin",
	Long: `Read a single line from stdin and print its bcrypt hash. The cost
defaults to bcrypt's default cost; match password.bcrypt_cost with --cost.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cost, _ := cmd.Flags().GetInt("cost")

		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password on stdin")
		}
		secret := strings.TrimRight(line, "\r\n")
		if secret == "" {
			return errors.New("password is empty")
		}

		hasher, err := password.NewHasher(cost)
		if err != nil {
			return err
		}
		hash, err := hasher.Hash(secret)
		if err != nil {
			return err
		}
		return newPrinter(cmd).PrintFields(map[string]interface{}{
			"hash": hash,
			"cost": hasher.Cost(),
		})
	},
}

func init() {
	hashPasswordCmd.Flags().Int("cost", 0, "bcrypt cost (0 selects the default)")
}
