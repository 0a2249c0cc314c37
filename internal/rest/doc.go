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

// Package rest provides the HTTP API of the authentication server.
//
// The server exposes password and passkey sign-in over a chi router:
//
//	srv, _ := rest.NewServer(&rest.Config{
//	    Addr:          ":8000",
//	    Auth:          authService,
//	    Authenticator: bearer,
//	})
//	go srv.Start()
//	defer srv.Stop(ctx)
//
// # API Endpoints
//
// Accounts and tokens:
//   - POST /api/v1/auth/register - Create an account (password optional)
//   - POST /api/v1/auth/login - Password sign-in, returns a token pair
//   - POST /api/v1/auth/refresh - Exchange a refresh token for a new pair
//   - GET /api/v1/users/me - Profile and registered passkeys (bearer)
//
// Passkeys:
//   - POST /api/v1/webauthn/register/options - Creation options (bearer)
//   - POST /api/v1/webauthn/register/verify - Store a new passkey (bearer)
//   - GET /api/v1/webauthn/authenticate/options?email= - Request options
//   - POST /api/v1/webauthn/authenticate/verify - Passkey sign-in, returns a token pair
//
// # Errors
//
// Errors are returned as JSON:
//
//	{"error": "unauthorized", "message": "Invalid credentials", "code": 401}
//
// Credential failures always carry the same message so responses do not
// reveal which check failed.
package rest
