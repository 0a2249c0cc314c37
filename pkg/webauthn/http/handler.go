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

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

// maxBodyBytes bounds credential response bodies.
const maxBodyBytes = 64 << 10

// ErrNoSubject is returned by a Subject function when the request carries
// no authenticated user.
var ErrNoSubject = errors.New("no authenticated subject")

// Ceremonies is the passkey surface the handlers drive.
type Ceremonies interface {
	BeginPasskeyRegistration(ctx context.Context, userID uuid.UUID) (*protocol.CredentialCreation, error)
	FinishPasskeyRegistration(ctx context.Context, userID uuid.UUID, response *protocol.ParsedCredentialCreationData) (*webauthn.Authenticator, error)
	PasskeyLoginOptions(ctx context.Context, email string) (*protocol.CredentialAssertion, error)
	LoginWithPasskey(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*token.Pair, error)
}

// ErrorHandler writes err to w.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Options configures a Handler.
type Options struct {
	// Ceremonies runs the ceremonies (required).
	Ceremonies Ceremonies

	// Subject resolves the signed-in user for registration (required).
	Subject func(r *http.Request) (uuid.UUID, error)

	// ErrorHandler replaces the built-in error mapping.
	ErrorHandler ErrorHandler

	// Logger defaults to a no-op logger.
	Logger logger.Logger
}

// Handler provides HTTP handlers for passkey ceremonies.
type Handler struct {
	ceremonies Ceremonies
	subject    func(r *http.Request) (uuid.UUID, error)
	onError    ErrorHandler
	log        logger.Logger
}

// NewHandler creates a new passkey HTTP handler.
func NewHandler(opts Options) *Handler {
	h := &Handler{
		ceremonies: opts.Ceremonies,
		subject:    opts.Subject,
		onError:    opts.ErrorHandler,
		log:        opts.Logger,
	}
	if h.log == nil {
		h.log = logger.NewNop()
	}
	if h.onError == nil {
		h.onError = h.handleServiceError
	}
	return h
}

// RegistrationOptions handles POST /register/options.
//
// Response: {"publicKey": PublicKeyCredentialCreationOptions}
func (h *Handler) RegistrationOptions(w http.ResponseWriter, r *http.Request) {
	userID, err := h.subject(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "authentication required")
		return
	}

	options, err := h.ceremonies.BeginPasskeyRegistration(r.Context(), userID)
	if err != nil {
		h.onError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// VerifyRegistration handles POST /register/verify.
//
// Request body: serialized PublicKeyCredential from navigator.credentials.create
// Response: RegistrationResponse
func (h *Handler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	userID, err := h.subject(r)
	if err != nil {
		h.writeError(w, http.StatusUnauthorized, ErrorCodeUnauthorized, "authentication required")
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid attestation response")
		return
	}

	record, err := h.ceremonies.FinishPasskeyRegistration(r.Context(), userID, response)
	if err != nil {
		h.onError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, RegistrationResponse{
		Message:       "Registration successful",
		Authenticator: record.View(),
	})
}

// AuthenticationOptions handles GET /authenticate/options.
//
// Query: email (optional). An unknown email yields the same discoverable
// options as no email at all.
// Response: {"publicKey": PublicKeyCredentialRequestOptions}
func (h *Handler) AuthenticationOptions(w http.ResponseWriter, r *http.Request) {
	options, err := h.ceremonies.PasskeyLoginOptions(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.onError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, options)
}

// VerifyAuthentication handles POST /authenticate/verify.
//
// Request body: serialized PublicKeyCredential from navigator.credentials.get
// Response: token pair
func (h *Handler) VerifyAuthentication(w http.ResponseWriter, r *http.Request) {
	response, err := protocol.ParseCredentialRequestResponseBody(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid assertion response")
		return
	}

	pair, err := h.ceremonies.LoginWithPasskey(r.Context(), response)
	if err != nil {
		h.onError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, pair)
}

// handleServiceError maps ceremony errors to HTTP responses. Verification
// failures get a fixed message.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, webauthn.ErrChallengeNotFound):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeNotFound, "challenge not found")
	case errors.Is(err, webauthn.ErrChallengeExpired):
		h.writeError(w, http.StatusBadRequest, ErrorCodeChallengeExpired, "challenge expired")
	case errors.Is(err, webauthn.ErrRegistrationVerificationFailed):
		h.writeError(w, http.StatusBadRequest, ErrorCodeVerificationFailed, "registration verification failed")
	case errors.Is(err, webauthn.ErrInvalidResponse):
		h.writeError(w, http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid authenticator response")
	case errors.Is(err, webauthn.ErrAuthenticatorNotFound),
		errors.Is(err, webauthn.ErrAuthenticationVerificationFailed),
		errors.Is(err, webauthn.ErrPossibleCloneDetected):
		h.writeError(w, http.StatusUnauthorized, ErrorCodeVerificationFailed, "authentication failed")
	default:
		h.log.ErrorContext(r.Context(), "passkey request failed", logger.Error(err))
		h.writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal server error")
	}
}

// writeJSON writes a JSON response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Response headers already written, can only log the error
		h.log.Error("failed to encode JSON response",
			logger.Error(err),
			logger.Int("status", status))
	}
}

// writeError writes an error response.
func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: message,
	})
}
