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

// Package user holds the account model and the directory used to look
// accounts up during authentication.
package user

import (
	"time"

	"github.com/google/uuid"
)

// User is an account that can sign in with a password, a passkey, or both.
type User struct {
	ID uuid.UUID `json:"id"`

	// Email is unique and stored in normalized (lower-case) form.
	Email string `json:"email"`

	FullName string `json:"full_name"`

	// PasswordHash is empty for passkey-only accounts.
	PasswordHash string `json:"-"`

	Active bool `json:"is_active"`

	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New returns an active user with a fresh ID.
func New(email, fullName, passwordHash string, now time.Time) *User {
	now = now.UTC()
	return &User{
		ID:           uuid.New(),
		Email:        email,
		FullName:     fullName,
		PasswordHash: passwordHash,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasPassword reports whether the account can use password login.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// DisplayName falls back to the email when no name was given.
func (u *User) DisplayName() string {
	if u.FullName == "" {
		return u.Email
	}
	return u.FullName
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	if u.LastLoginAt != nil {
		t := *u.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}
