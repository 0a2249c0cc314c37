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
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryCredentialStore is an in-memory implementation of CredentialStore.
// This is intended for development and testing only.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	byCID map[string]*Authenticator
}

// NewMemoryCredentialStore creates a new in-memory credential store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		byCID: make(map[string]*Authenticator),
	}
}

// FindByCredentialID retrieves a record by its credential ID.
func (s *MemoryCredentialStore) FindByCredentialID(_ context.Context, credentialID []byte) (*Authenticator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byCID[hex.EncodeToString(credentialID)]
	if !ok {
		return nil, ErrAuthenticatorNotFound
	}
	return a.Clone(), nil
}

// Save stores a new record.
func (s *MemoryCredentialStore) Save(_ context.Context, a *Authenticator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := hex.EncodeToString(a.CredentialID)
	if _, exists := s.byCID[key]; exists {
		return ErrCredentialExists
	}
	s.byCID[key] = a.Clone()
	return nil
}

// Update applies a counter compare-and-swap.
func (s *MemoryCredentialStore) Update(_ context.Context, a *Authenticator, previousSignCount uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byCID[hex.EncodeToString(a.CredentialID)]
	if !ok {
		return ErrAuthenticatorNotFound
	}
	if current.SignCount != previousSignCount {
		return ErrCounterConflict
	}

	current.SignCount = a.SignCount
	current.Flags = a.Flags
	if a.LastUsedAt != nil {
		t := *a.LastUsedAt
		current.LastUsedAt = &t
	}
	return nil
}

// ListForUser retrieves all records of a user, oldest first.
func (s *MemoryCredentialStore) ListForUser(_ context.Context, userID uuid.UUID) ([]*Authenticator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Authenticator, 0)
	for _, a := range s.byCID {
		if a.UserID == userID {
			result = append(result, a.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Count returns the number of records in the store.
func (s *MemoryCredentialStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byCID)
}

// MemoryChallengeStore is an in-memory implementation of ChallengeStore.
// Expired entries stay until consumed or pruned with DeleteExpired.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
}

// NewMemoryChallengeStore creates a new in-memory challenge store.
func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{
		challenges: make(map[string]*Challenge),
	}
}

// Put stores a challenge under its key. The TTL is carried by ExpiresAt.
func (s *MemoryChallengeStore) Put(_ context.Context, c *Challenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *c
	s.challenges[c.Key()] = &stored
	return nil
}

// GetAndConsume fetches and removes a challenge in one step.
func (s *MemoryChallengeStore) GetAndConsume(_ context.Context, key string) (*Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[key]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	delete(s.challenges, key)
	return c, nil
}

// DeleteExpired removes every challenge expired at now.
func (s *MemoryChallengeStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, c := range s.challenges {
		if c.Expired(now) {
			delete(s.challenges, key)
			n++
		}
	}
	return n, nil
}

// Count returns the number of pending challenges.
func (s *MemoryChallengeStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
