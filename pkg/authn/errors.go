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

package authn

import "errors"

var (
	// ErrInvalidCredentials is the single rejection for password sign-in.
	// It never reveals whether the email exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidInput is returned for structurally invalid registration input.
	ErrInvalidInput = errors.New("invalid input")
)
