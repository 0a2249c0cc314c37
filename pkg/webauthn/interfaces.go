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
	"context"
	"time"

	"github.com/google/uuid"
)

// CredentialStore persists Authenticator records. Implementations must be
// safe for concurrent use.
type CredentialStore interface {
	// FindByCredentialID returns ErrAuthenticatorNotFound when no record
	// has the credential ID.
	FindByCredentialID(ctx context.Context, credentialID []byte) (*Authenticator, error)

	// Save stores a new record. Returns ErrCredentialExists if the
	// credential ID is already registered.
	Save(ctx context.Context, a *Authenticator) error

	// Update writes the counter and last-used time of a, but only if the
	// stored counter still equals previousSignCount. Otherwise it returns
	// ErrCounterConflict and changes nothing.
	Update(ctx context.Context, a *Authenticator, previousSignCount uint32) error

	// ListForUser returns the user's records, oldest first. An empty slice
	// is not an error.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Authenticator, error)
}

// ChallengeStore holds pending ceremony challenges between the options and
// verify requests.
type ChallengeStore interface {
	// Put stores c under c.Key(). The store may drop it after ttl.
	Put(ctx context.Context, c *Challenge, ttl time.Duration) error

	// GetAndConsume atomically fetches and deletes the challenge stored
	// under key. Returns ErrChallengeNotFound if there is none. A challenge
	// that is still present past its expiry is returned as-is; the caller
	// checks ExpiresAt.
	GetAndConsume(ctx context.Context, key string) (*Challenge, error)
}

// ChallengePruner is implemented by challenge stores that need periodic
// cleanup of abandoned ceremonies.
type ChallengePruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
