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

package user

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Directory is the account lookup used by the authentication core.
// Implementations must be safe for concurrent use.
type Directory interface {
	// FindByEmail returns ErrUserNotFound when no account has the
	// (already normalized) email.
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByID returns ErrUserNotFound when the account does not exist.
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)

	// Create stores a new account. Returns ErrDuplicateEmail on conflict.
	Create(ctx context.Context, u *User) error

	// TouchLastLogin records a successful sign-in.
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// MemoryDirectory is an in-process Directory for tests and single-node
// development setups.
type MemoryDirectory struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*User
	byEmail map[string]uuid.UUID
}

// NewMemoryDirectory returns an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		byID:    make(map[uuid.UUID]*User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (d *MemoryDirectory) FindByEmail(_ context.Context, email string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	return d.byID[id].Clone(), nil
}

func (d *MemoryDirectory) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u.Clone(), nil
}

func (d *MemoryDirectory) Create(_ context.Context, u *User) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byEmail[u.Email]; exists {
		return ErrDuplicateEmail
	}
	d.byID[u.ID] = u.Clone()
	d.byEmail[u.Email] = u.ID
	return nil
}

func (d *MemoryDirectory) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	at = at.UTC()
	u.LastLoginAt = &at
	u.UpdatedAt = at
	return nil
}

// SetActive toggles an account's active flag.
func (d *MemoryDirectory) SetActive(id uuid.UUID, active bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return ErrUserNotFound
	}
	u.Active = active
	return nil
}
