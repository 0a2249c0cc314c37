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

// Package webauthn runs the server side of WebAuthn (FIDO2) registration
// and authentication ceremonies on top of the go-webauthn library.
//
// Each ceremony is split across two requests. The options call creates a
// fresh random challenge, persists it in a ChallengeStore with a TTL and
// returns the options document for the browser. The verify call consumes
// that challenge exactly once, whether or not verification succeeds, and
// then checks the authenticator response against it.
//
// # Storage
//
// Persistence is pluggable:
//
//   - CredentialStore holds Authenticator records. Update is a
//     compare-and-swap on the previous signature counter.
//   - ChallengeStore holds pending challenges. GetAndConsume must be an
//     atomic fetch-and-delete.
//
// In-memory implementations are provided for tests and single-node setups.
// The storage/postgres and storage/redis packages provide durable ones.
//
// # Usage
//
//	svc, err := webauthn.NewService(webauthn.ServiceParams{
//	    Config: &webauthn.Config{
//	        RPID:          "localhost",
//	        RPDisplayName: "My App",
//	        RPOrigins:     []string{"https://localhost:3000"},
//	    },
//	    Credentials: webauthn.NewMemoryCredentialStore(),
//	    Challenges:  webauthn.NewMemoryChallengeStore(),
//	})
//
// # Signature counters
//
// A successful assertion must carry a counter strictly greater than the
// stored one, unless both are zero. Anything else is reported as
// ErrPossibleCloneDetected and the stored record is left untouched.
//
// WebAuthn requires a secure context: browsers only expose the API over
// HTTPS (or on localhost).
package webauthn
