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

package webauthn

import (
	"errors"
	"fmt"
)

// Sentinel errors for ceremony operations.
var (
	// ErrChallengeNotFound is returned when no pending challenge matches,
	// including one that was already consumed.
	ErrChallengeNotFound = errors.New("challenge not found")

	// ErrChallengeExpired is returned when the pending challenge is past its expiry.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrAuthenticatorNotFound is returned when no stored authenticator has
	// the asserted credential ID.
	ErrAuthenticatorNotFound = errors.New("authenticator not found")

	// ErrRegistrationVerificationFailed is returned when an attestation
	// response does not verify.
	ErrRegistrationVerificationFailed = errors.New("registration verification failed")

	// ErrAuthenticationVerificationFailed is returned when an assertion
	// response does not verify.
	ErrAuthenticationVerificationFailed = errors.New("authentication verification failed")

	// ErrPossibleCloneDetected is returned when the signature counter did
	// not advance.
	ErrPossibleCloneDetected = errors.New("possible cloned authenticator detected")

	// ErrCredentialExists is returned by a CredentialStore when the credential
	// ID is already registered.
	ErrCredentialExists = errors.New("credential already exists")

	// ErrCounterConflict is returned by CredentialStore.Update when the
	// stored counter no longer matches the expected previous value.
	ErrCounterConflict = errors.New("signature counter conflict")

	// ErrInvalidResponse is returned when the authenticator response is missing
	// or structurally unusable.
	ErrInvalidResponse = errors.New("invalid authenticator response")
)

// WebAuthnError wraps an error with the operation that failed and, for
// verification failures, the underlying library error.
type WebAuthnError struct {
	Op    string // Operation that failed
	Err   error  // Sentinel or store error
	Cause error  // Underlying reason, not meant for clients
}

// Error returns the error message.
func (e *WebAuthnError) Error() string {
	msg := e.Err.Error()
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Unwrap returns both the sentinel and the cause.
func (e *WebAuthnError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewError creates a new WebAuthnError with the given operation and error.
func NewError(op string, err error) error {
	return &WebAuthnError{
		Op:  op,
		Err: err,
	}
}

// WrapError wraps an error with an operation name if it's not nil.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(op, err)
}

func verificationError(op string, sentinel, cause error) error {
	return &WebAuthnError{Op: op, Err: sentinel, Cause: cause}
}

// IsChallengeError reports whether err is a missing or expired challenge.
func IsChallengeError(err error) bool {
	return errors.Is(err, ErrChallengeNotFound) || errors.Is(err, ErrChallengeExpired)
}

// IsRejection reports whether err is a ceremony rejection as opposed to an
// infrastructure failure.
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrChallengeNotFound,
		ErrChallengeExpired,
		ErrAuthenticatorNotFound,
		ErrRegistrationVerificationFailed,
		ErrAuthenticationVerificationFailed,
		ErrPossibleCloneDetected,
		ErrInvalidResponse,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
