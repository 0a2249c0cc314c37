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

// Package testutil provides helpers shared by tests across packages.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
)

// Relying party values used throughout the tests.
const (
	RPID     = "example.com"
	RPName   = "Example Corp"
	RPOrigin = "https://example.com"
)

// Passkey is a software authenticator holding a single EC2 credential.
type Passkey struct {
	RP            virtualwebauthn.RelyingParty
	Authenticator virtualwebauthn.Authenticator
	Credential    virtualwebauthn.Credential
}

// NewPasskey returns a passkey for the test relying party. A non-nil
// userHandle is returned in assertions, which the discoverable flow needs.
func NewPasskey(userHandle []byte) *Passkey {
	authenticator := virtualwebauthn.NewAuthenticator()
	if userHandle != nil {
		authenticator = virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
			UserHandle: userHandle,
		})
	}
	return &Passkey{
		RP: virtualwebauthn.RelyingParty{
			Name:   RPName,
			ID:     RPID,
			Origin: RPOrigin,
		},
		Authenticator: authenticator,
		Credential:    virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2),
	}
}

// AttestationJSON answers creation options the way a browser would and
// returns the raw response body. The credential is added to the
// authenticator so it can be used for assertions afterwards.
func (p *Passkey) AttestationJSON(options *protocol.CredentialCreation) (string, error) {
	raw, err := json.Marshal(options.Response)
	if err != nil {
		return "", fmt.Errorf("marshal creation options: %w", err)
	}
	parsed, err := virtualwebauthn.ParseAttestationOptions(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse creation options: %w", err)
	}
	response := virtualwebauthn.CreateAttestationResponse(p.RP, p.Authenticator, p.Credential, *parsed)
	p.Authenticator.AddCredential(p.Credential)
	return response, nil
}

// Attest is AttestationJSON followed by go-webauthn parsing.
func (p *Passkey) Attest(options *protocol.CredentialCreation) (*protocol.ParsedCredentialCreationData, error) {
	body, err := p.AttestationJSON(options)
	if err != nil {
		return nil, err
	}
	return ParseAttestation(body)
}

// AssertionJSON signs request options with the passkey's credential.
// The signature counter is sent as-is; tests advance Credential.Counter.
func (p *Passkey) AssertionJSON(options *protocol.CredentialAssertion) (string, error) {
	raw, err := json.Marshal(options.Response)
	if err != nil {
		return "", fmt.Errorf("marshal request options: %w", err)
	}
	parsed, err := virtualwebauthn.ParseAssertionOptions(string(raw))
	if err != nil {
		return "", fmt.Errorf("parse request options: %w", err)
	}
	return virtualwebauthn.CreateAssertionResponse(p.RP, p.Authenticator, p.Credential, *parsed), nil
}

// Assert is AssertionJSON followed by go-webauthn parsing.
func (p *Passkey) Assert(options *protocol.CredentialAssertion) (*protocol.ParsedCredentialAssertionData, error) {
	body, err := p.AssertionJSON(options)
	if err != nil {
		return nil, err
	}
	return ParseAssertion(body)
}

// ParseAttestation parses a raw attestation response body.
func ParseAttestation(body string) (*protocol.ParsedCredentialCreationData, error) {
	var ccr protocol.CredentialCreationResponse
	if err := json.Unmarshal([]byte(body), &ccr); err != nil {
		return nil, err
	}
	return ccr.Parse()
}

// ParseAssertion parses a raw assertion response body.
func ParseAssertion(body string) (*protocol.ParsedCredentialAssertionData, error) {
	var car protocol.CredentialAssertionResponse
	if err := json.Unmarshal([]byte(body), &car); err != nil {
		return nil, err
	}
	return car.Parse()
}
