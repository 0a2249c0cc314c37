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

package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("no bearer token provided")
)

// TokenVerifier checks a signed token. *token.Issuer implements it.
type TokenVerifier interface {
	Verify(raw string, expected token.Kind) (*token.Verified, error)
}

// BearerAuthenticator authenticates requests carrying an access token in
// the Authorization header. Refresh tokens are rejected.
type BearerAuthenticator struct {
	verifier   TokenVerifier
	headerName string
}

// BearerConfig configures the bearer authenticator.
type BearerConfig struct {
	// Verifier validates tokens (required)
	Verifier TokenVerifier
	// HeaderName is the HTTP header name (default: "Authorization")
	HeaderName string
}

// NewBearerAuthenticator creates a new bearer token authenticator.
func NewBearerAuthenticator(config *BearerConfig) (*BearerAuthenticator, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if config.Verifier == nil {
		return nil, fmt.Errorf("token verifier is required")
	}

	headerName := config.HeaderName
	if headerName == "" {
		headerName = "Authorization"
	}

	return &BearerAuthenticator{
		verifier:   config.Verifier,
		headerName: headerName,
	}, nil
}

// AuthenticateHTTP authenticates an HTTP request using a bearer token.
func (a *BearerAuthenticator) AuthenticateHTTP(r *http.Request) (*Identity, error) {
	raw, ok := bearerToken(r.Header.Get(a.headerName))
	if !ok {
		return nil, ErrMissingToken
	}

	identity, err := a.verify(raw)
	if err != nil {
		return nil, err
	}
	identity.Attributes["remote_addr"] = r.RemoteAddr
	return identity, nil
}

// Name returns the authenticator name.
func (a *BearerAuthenticator) Name() string {
	return "bearer"
}

func (a *BearerAuthenticator) verify(raw string) (*Identity, error) {
	v, err := a.verifier.Verify(raw, token.KindAccess)
	if err != nil {
		return nil, err
	}
	return &Identity{
		Subject: v.Subject,
		Attributes: map[string]string{
			"auth_method": "bearer",
		},
	}, nil
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// value. The scheme is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, raw, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}
