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
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
)

// Ceremony identifies which WebAuthn ceremony a challenge belongs to.
type Ceremony string

const (
	CeremonyRegistration   Ceremony = "registration"
	CeremonyAuthentication Ceremony = "authentication"
)

// Account is the identity a registration ceremony is bound to.
type Account struct {
	ID          uuid.UUID
	Name        string // usually the email
	DisplayName string
}

// Authenticator is a registered WebAuthn credential as stored by the
// Relying Party.
type Authenticator struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	// CredentialID is assigned by the authenticator and unique across users.
	CredentialID []byte `json:"credential_id"`

	// PublicKey is the COSE-encoded credential public key.
	PublicKey []byte `json:"public_key"`

	AttestationType string                            `json:"attestation_type"`
	AAGUID          []byte                            `json:"aaguid,omitempty"`
	Transports      []protocol.AuthenticatorTransport `json:"transports,omitempty"`
	Attachment      protocol.AuthenticatorAttachment  `json:"attachment,omitempty"`
	Flags           CredentialFlags                   `json:"flags"`

	// SignCount is the last accepted signature counter.
	SignCount uint32 `json:"sign_count"`

	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// CredentialFlags contains authenticator capability flags.
type CredentialFlags struct {
	UserPresent    bool `json:"user_present"`
	UserVerified   bool `json:"user_verified"`
	BackupEligible bool `json:"backup_eligible"`
	BackupState    bool `json:"backup_state"`
}

func newAuthenticator(userID uuid.UUID, wc *webauthn.Credential, now time.Time) *Authenticator {
	return &Authenticator{
		ID:              uuid.New(),
		UserID:          userID,
		CredentialID:    wc.ID,
		PublicKey:       wc.PublicKey,
		AttestationType: wc.AttestationType,
		AAGUID:          wc.Authenticator.AAGUID,
		Transports:      wc.Transport,
		Attachment:      wc.Authenticator.Attachment,
		Flags: CredentialFlags{
			UserPresent:    wc.Flags.UserPresent,
			UserVerified:   wc.Flags.UserVerified,
			BackupEligible: wc.Flags.BackupEligible,
			BackupState:    wc.Flags.BackupState,
		},
		SignCount: wc.Authenticator.SignCount,
		CreatedAt: now.UTC(),
	}
}

// ToWebAuthn converts the record to the go-webauthn library's Credential type.
func (a *Authenticator) ToWebAuthn() webauthn.Credential {
	return webauthn.Credential{
		ID:              a.CredentialID,
		PublicKey:       a.PublicKey,
		AttestationType: a.AttestationType,
		Transport:       a.Transports,
		Flags: webauthn.CredentialFlags{
			UserPresent:    a.Flags.UserPresent,
			UserVerified:   a.Flags.UserVerified,
			BackupEligible: a.Flags.BackupEligible,
			BackupState:    a.Flags.BackupState,
		},
		Authenticator: webauthn.Authenticator{
			AAGUID:     a.AAGUID,
			SignCount:  a.SignCount,
			Attachment: a.Attachment,
		},
	}
}

// Descriptor returns the credential descriptor used in allow and exclude lists.
func (a *Authenticator) Descriptor() protocol.CredentialDescriptor {
	return protocol.CredentialDescriptor{
		Type:         protocol.PublicKeyCredentialType,
		CredentialID: a.CredentialID,
		Transport:    a.Transports,
	}
}

// Clone returns a deep copy.
func (a *Authenticator) Clone() *Authenticator {
	c := *a
	c.CredentialID = append([]byte(nil), a.CredentialID...)
	c.PublicKey = append([]byte(nil), a.PublicKey...)
	c.AAGUID = append([]byte(nil), a.AAGUID...)
	c.Transports = append([]protocol.AuthenticatorTransport(nil), a.Transports...)
	if a.LastUsedAt != nil {
		t := *a.LastUsedAt
		c.LastUsedAt = &t
	}
	return &c
}

// AuthenticatorView is the client-facing projection of an Authenticator.
// Binary fields are base64url encoded without padding.
type AuthenticatorView struct {
	ID           uuid.UUID                         `json:"id"`
	CredentialID protocol.URLEncodedBase64         `json:"credential_id"`
	PublicKey    protocol.URLEncodedBase64         `json:"public_key"`
	SignCount    uint32                            `json:"sign_count"`
	Transports   []protocol.AuthenticatorTransport `json:"transports,omitempty"`
	CreatedAt    time.Time                         `json:"created_at"`
	LastUsedAt   *time.Time                        `json:"last_used_at,omitempty"`
}

// View returns the client-facing projection of a.
func (a *Authenticator) View() AuthenticatorView {
	return AuthenticatorView{
		ID:           a.ID,
		CredentialID: a.CredentialID,
		PublicKey:    a.PublicKey,
		SignCount:    a.SignCount,
		Transports:   a.Transports,
		CreatedAt:    a.CreatedAt,
		LastUsedAt:   a.LastUsedAt,
	}
}

// Challenge is a pending, single-use ceremony challenge.
type Challenge struct {
	Ceremony Ceremony `json:"ceremony"`

	// Value is the base64url challenge exactly as it appears in the
	// options document and in the client data of the response.
	Value string `json:"challenge"`

	// UserID is nil for discoverable-credential authentication.
	UserID *uuid.UUID `json:"user_id,omitempty"`

	Session   webauthn.SessionData `json:"session"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// ChallengeKey returns the store key for a challenge value.
func ChallengeKey(ceremony Ceremony, value string) string {
	return string(ceremony) + ":" + value
}

// Key returns the store key of c.
func (c *Challenge) Key() string {
	return ChallengeKey(c.Ceremony, c.Value)
}

// Expired reports whether c can no longer be redeemed at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ceremonyUser adapts an account and its records to webauthn.User.
type ceremonyUser struct {
	id          uuid.UUID
	name        string
	displayName string
	credentials []webauthn.Credential
}

func newCeremonyUser(account Account, records []*Authenticator) *ceremonyUser {
	creds := make([]webauthn.Credential, len(records))
	for i, r := range records {
		creds[i] = r.ToWebAuthn()
	}
	return &ceremonyUser{
		id:          account.ID,
		name:        account.Name,
		displayName: account.DisplayName,
		credentials: creds,
	}
}

func (u *ceremonyUser) WebAuthnID() []byte {
	id := u.id
	return id[:]
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.name
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName == "" {
		return u.name
	}
	return u.displayName
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}
