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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWebAuthnError(t *testing.T) {
	cause := errors.New("origin mismatch")
	err := verificationError("verify registration", ErrRegistrationVerificationFailed, cause)

	assert.Equal(t, "verify registration: registration verification failed: origin mismatch", err.Error())
	assert.ErrorIs(t, err, ErrRegistrationVerificationFailed)
	assert.ErrorIs(t, err, cause)

	var werr *WebAuthnError
	assert.True(t, errors.As(err, &werr))
	assert.Equal(t, "verify registration", werr.Op)
}

func TestWrapError(t *testing.T) {
	assert.Nil(t, WrapError("op", nil))

	err := WrapError("op", ErrChallengeNotFound)
	assert.Equal(t, "op: challenge not found", err.Error())
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	bare := &WebAuthnError{Err: ErrChallengeExpired}
	assert.Equal(t, "challenge expired", bare.Error())
}

func TestIsRejection(t *testing.T) {
	assert.True(t, IsRejection(NewError("op", ErrPossibleCloneDetected)))
	assert.True(t, IsRejection(fmt.Errorf("wrapped: %w", ErrAuthenticatorNotFound)))
	assert.True(t, IsChallengeError(NewError("op", ErrChallengeExpired)))
	assert.False(t, IsChallengeError(ErrAuthenticatorNotFound))
	assert.False(t, IsRejection(NewError("op", errors.New("connection refused"))))
}
