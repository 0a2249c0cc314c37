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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-auth/pkg/authn"
	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
	"github.com/jeremyhahn/go-passkey-auth/pkg/user"
	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
	webauthnhttp "github.com/jeremyhahn/go-passkey-auth/pkg/webauthn/http"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrRateLimited    = errors.New("rate limit exceeded")
	ErrInternalError  = errors.New("internal server error")
)

// Error codes returned in ErrorResponse.Error.
const (
	codeInvalidRequest     = webauthnhttp.ErrorCodeInvalidRequest
	codeUnauthorized       = webauthnhttp.ErrorCodeUnauthorized
	codeChallengeNotFound  = webauthnhttp.ErrorCodeChallengeNotFound
	codeChallengeExpired   = webauthnhttp.ErrorCodeChallengeExpired
	codeVerificationFailed = webauthnhttp.ErrorCodeVerificationFailed
	codeInternalError      = webauthnhttp.ErrorCodeInternalError
	codeConflict           = "conflict"
	codeRateLimited        = "rate_limited"
)

// apiError is the HTTP rendering of a domain error.
type apiError struct {
	status  int
	code    string
	message string
}

// mapError maps domain errors to HTTP responses. Credential failures share
// one message. Anything unrecognized is a 500.
func mapError(err error) apiError {
	switch {
	case errors.Is(err, authn.ErrInvalidCredentials),
		errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, user.ErrUserNotFound):
		return apiError{http.StatusUnauthorized, codeUnauthorized, "Invalid credentials"}
	case errors.Is(err, webauthn.ErrAuthenticatorNotFound),
		errors.Is(err, webauthn.ErrAuthenticationVerificationFailed),
		errors.Is(err, webauthn.ErrPossibleCloneDetected):
		return apiError{http.StatusUnauthorized, codeVerificationFailed, "Authentication failed"}
	case errors.Is(err, webauthn.ErrChallengeNotFound):
		return apiError{http.StatusBadRequest, codeChallengeNotFound, "Challenge not found"}
	case errors.Is(err, webauthn.ErrChallengeExpired):
		return apiError{http.StatusBadRequest, codeChallengeExpired, "Challenge expired"}
	case errors.Is(err, webauthn.ErrRegistrationVerificationFailed):
		return apiError{http.StatusBadRequest, codeVerificationFailed, "Registration verification failed"}
	case errors.Is(err, webauthn.ErrInvalidResponse):
		return apiError{http.StatusBadRequest, codeInvalidRequest, "Invalid authenticator response"}
	case errors.Is(err, authn.ErrInvalidInput):
		return apiError{http.StatusBadRequest, codeInvalidRequest, err.Error()}
	case errors.Is(err, ErrInvalidRequest):
		return apiError{http.StatusBadRequest, codeInvalidRequest, "Invalid request"}
	case errors.Is(err, user.ErrDuplicateEmail):
		return apiError{http.StatusConflict, codeConflict, "Email already registered"}
	case errors.Is(err, ErrRateLimited):
		return apiError{http.StatusTooManyRequests, codeRateLimited, "Too many requests"}
	default:
		return apiError{http.StatusInternalServerError, codeInternalError, "An unexpected error occurred"}
	}
}

// handleError maps err to a status code and writes the error response.
// Server errors are logged with their cause; the client never sees it.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	e := mapError(err)
	if e.status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "Request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Error(err))
	}
	s.writeError(w, e)
}

func (s *Server) writeError(w http.ResponseWriter, e apiError) {
	s.writeJSON(w, ErrorResponse{Error: e.code, Message: e.message, Code: e.status}, e.status)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", logger.Error(err))
	}
}
