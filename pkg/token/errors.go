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

package token

import "errors"

// ErrInvalidToken is the parent of every verification failure. Callers that
// only need a reject/accept decision match against it.
var ErrInvalidToken = errors.New("invalid token")

// Specific verification failures. Each wraps ErrInvalidToken.
var (
	ErrInvalidSignature = &kindError{msg: "token signature is invalid"}
	ErrExpired          = &kindError{msg: "token has expired"}
	ErrWrongKind        = &kindError{msg: "token kind mismatch"}
	ErrMalformedSubject = &kindError{msg: "token subject is not a user id"}
	ErrMalformed        = &kindError{msg: "token is malformed"}
)

type kindError struct {
	msg string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return ErrInvalidToken }
