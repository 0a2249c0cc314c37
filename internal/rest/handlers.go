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

package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/auth"
	"github.com/jeremyhahn/go-passkey-auth/pkg/authn"
	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
	"github.com/jeremyhahn/go-passkey-auth/pkg/user"
	webauthnhttp "github.com/jeremyhahn/go-passkey-auth/pkg/webauthn/http"
)

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 16 << 10

// AuthService is the authentication surface served over HTTP.
// *authn.Service implements it.
type AuthService interface {
	webauthnhttp.Ceremonies

	Register(ctx context.Context, reg authn.Registration) (*user.User, error)
	LoginWithPassword(ctx context.Context, email, password string) (*token.Pair, error)
	Refresh(ctx context.Context, refreshToken string) (*token.Pair, error)
	Profile(ctx context.Context, userID uuid.UUID) (*authn.Profile, error)
}

// RegisterHandler handles POST /api/v1/auth/register.
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}

	u, err := s.auth.Register(r.Context(), authn.Registration{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, newUserResponse(u), http.StatusCreated)
}

// LoginHandler handles POST /api/v1/auth/login.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		s.handleError(w, r, fmt.Errorf("%w: email and password are required", ErrInvalidRequest))
		return
	}

	pair, err := s.auth.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, pair, http.StatusOK)
}

// RefreshHandler handles POST /api/v1/auth/refresh.
func (s *Server) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleError(w, r, err)
		return
	}
	if req.RefreshToken == "" {
		s.handleError(w, r, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest))
		return
	}

	pair, err := s.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, pair, http.StatusOK)
}

// MeHandler handles GET /api/v1/users/me.
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.SubjectFromRequest(r)
	if err != nil {
		s.handleError(w, r, ErrUnauthorized)
		return
	}

	profile, err := s.auth.Profile(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}

	s.writeJSON(w, newProfileResponse(profile), http.StatusOK)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
