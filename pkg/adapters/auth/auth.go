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

// Package auth authenticates inbound HTTP requests that carry an
// access token and places the resulting Identity in the request context.
package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

// ErrUnauthenticated is returned by SubjectFromContext when no identity is present.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity represents an authenticated user
type Identity struct {
	// Subject is the user ID carried in the token.
	Subject uuid.UUID

	// Attributes contains metadata about the authentication (auth method, remote address, etc.)
	Attributes map[string]string
}

// Authenticator is the interface for authentication adapters
type Authenticator interface {
	// AuthenticateHTTP authenticates an HTTP request and returns an identity
	AuthenticateHTTP(r *http.Request) (*Identity, error)

	// Name returns the authenticator name for logging/debugging
	Name() string
}

// ContextKey is the type for context keys used by the auth package
type ContextKey string

const (
	// IdentityContextKey is the context key for storing authenticated identity
	IdentityContextKey ContextKey = "auth.identity"
)

// GetIdentity extracts the identity from a context
func GetIdentity(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(IdentityContextKey).(*Identity); ok {
		return identity
	}
	return nil
}

// WithIdentity adds an identity to a context
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// SubjectFromContext returns the authenticated user ID.
func SubjectFromContext(ctx context.Context) (uuid.UUID, error) {
	identity := GetIdentity(ctx)
	if identity == nil || identity.Subject == uuid.Nil {
		return uuid.Nil, ErrUnauthenticated
	}
	return identity.Subject, nil
}

// SubjectFromRequest is SubjectFromContext for an HTTP request. Its
// signature matches the subject resolver the WebAuthn handlers expect.
func SubjectFromRequest(r *http.Request) (uuid.UUID, error) {
	return SubjectFromContext(r.Context())
}
