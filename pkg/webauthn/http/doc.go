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

// Package http exposes the passkey ceremonies as HTTP handlers that can be
// mounted on a chi router.
//
// The handlers speak the browser's WebAuthn JSON: the options endpoints
// return {"publicKey": {...}} documents ready for navigator.credentials,
// and the verify endpoints accept the serialized PublicKeyCredential.
//
// Registration endpoints act on the signed-in user, resolved through the
// Subject function supplied by the caller (typically the bearer-token
// middleware). Authentication endpoints are public.
//
//	h := webauthnhttp.NewHandler(webauthnhttp.Options{
//	    Ceremonies: authService,
//	    Subject:    auth.SubjectFromRequest,
//	})
//	r.Route("/webauthn", func(r chi.Router) {
//	    webauthnhttp.MountChi(r, h, requireBearer)
//	})
package http
