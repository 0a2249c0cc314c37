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
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountChi mounts the passkey routes on a chi router. requireAuth guards
// the registration routes; pass nil when the router already enforces it.
//
// Example:
//
//	r.Route("/api/v1/webauthn", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, handler, bearer.Middleware)
//	})
func MountChi(r chi.Router, h *Handler, requireAuth func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if requireAuth != nil {
			r.Use(requireAuth)
		}
		r.Post("/register/options", h.RegistrationOptions)
		r.Post("/register/verify", h.VerifyRegistration)
	})
	r.Get("/authenticate/options", h.AuthenticationOptions)
	r.Post("/authenticate/verify", h.VerifyAuthentication)
}

// RouteEntry represents a single route with its method, path, and handler.
type RouteEntry struct {
	Method        string
	Path          string
	Handler       http.HandlerFunc
	Authenticated bool
}

// Routes returns the route table for manual mounting.
func (h *Handler) Routes() []RouteEntry {
	return []RouteEntry{
		{Method: http.MethodPost, Path: "/register/options", Handler: h.RegistrationOptions, Authenticated: true},
		{Method: http.MethodPost, Path: "/register/verify", Handler: h.VerifyRegistration, Authenticated: true},
		{Method: http.MethodGet, Path: "/authenticate/options", Handler: h.AuthenticationOptions},
		{Method: http.MethodPost, Path: "/authenticate/verify", Handler: h.VerifyAuthentication},
	}
}
