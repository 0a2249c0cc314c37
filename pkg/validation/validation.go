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

// Package validation checks user supplied account fields before they reach
// the authentication core or the database.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MinPasswordLength is the shortest password accepted at registration.
	MinPasswordLength = 8

	// MaxPasswordLength matches the bcrypt input limit.
	MaxPasswordLength = 72

	maxEmailLength    = 254
	maxFullNameLength = 200
)

var localPartPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_{|}~\-]+$`)

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
// Accounts are looked up by the normalized form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks that email is a bare address ("a@x.com"), not a
// display-name form such as "Alice <a@x.com>".
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > maxEmailLength {
		return fmt.Errorf("email too long (max %d characters)", maxEmailLength)
	}
	if hasControl(email) {
		return fmt.Errorf("email contains control characters")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("email is not a valid address")
	}

	at := strings.LastIndex(email, "@")
	local, domain := email[:at], email[at+1:]
	if !localPartPattern.MatchString(local) {
		return fmt.Errorf("email contains invalid characters")
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return fmt.Errorf("email domain is invalid")
	}
	return nil
}

// ValidatePassword enforces the registration password policy.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes", MaxPasswordLength)
	}
	if strings.Contains(password, "\x00") {
		return fmt.Errorf("password contains null byte")
	}
	return nil
}

// ValidateFullName accepts empty names; non-empty ones must be printable.
func ValidateFullName(name string) error {
	if utf8.RuneCountInString(name) > maxFullNameLength {
		return fmt.Errorf("full name too long (max %d characters)", maxFullNameLength)
	}
	if hasControl(name) {
		return fmt.Errorf("full name contains control characters")
	}
	return nil
}

// SanitizeForLog sanitizes a string for safe logging (prevents log injection).
func SanitizeForLog(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)

	if len(s) > 1000 {
		s = s[:1000] + "...[truncated]"
	}
	return s
}

func hasControl(s string) bool {
	for _, r := range s {
		if r < 32 || r == 127 {
			return true
		}
	}
	return false
}
