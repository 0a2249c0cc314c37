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
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/logger"
)

var errUserHandleMismatch = errors.New("user handle does not match credential owner")

// Service drives WebAuthn registration and authentication ceremonies.
type Service struct {
	webauthn    *webauthn.WebAuthn
	config      *Config
	credentials CredentialStore
	challenges  ChallengeStore
	log         logger.Logger
	now         func() time.Time
}

// ServiceParams contains dependencies for creating a ceremony service.
type ServiceParams struct {
	// Config is the WebAuthn configuration (required).
	Config *Config

	// Credentials persists authenticator records (required).
	Credentials CredentialStore

	// Challenges persists pending challenges (required).
	Challenges ChallengeStore

	// Logger defaults to a no-op logger.
	Logger logger.Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// NewService creates a new ceremony service with the provided dependencies.
// Defaults are applied to a copy of params.Config; the caller's value is
// left untouched.
func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Credentials == nil {
		return nil, errors.New("credential store is required")
	}
	if params.Challenges == nil {
		return nil, errors.New("challenge store is required")
	}

	cfg := *params.Config
	cfg.RPOrigins = slices.Clone(params.Config.RPOrigins)
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wa, err := webauthn.New(cfg.ToWebAuthnConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create webauthn instance: %w", err)
	}

	log := params.Logger
	if log == nil {
		log = logger.NewNop()
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		webauthn:    wa,
		config:      &cfg,
		credentials: params.Credentials,
		challenges:  params.Challenges,
		log:         log,
		now:         clock,
	}, nil
}

// Config returns a copy of the effective configuration, defaults included.
func (s *Service) Config() *Config {
	c := *s.config
	c.RPOrigins = slices.Clone(s.config.RPOrigins)
	return &c
}

// GenerateRegistrationOptions creates a registration challenge bound to
// account, persists it and returns the creation options for the browser.
// Credentials the account already owns are listed as exclusions.
func (s *Service) GenerateRegistrationOptions(ctx context.Context, account Account) (*protocol.CredentialCreation, error) {
	const op = "generate registration options"

	existing, err := s.credentials.ListForUser(ctx, account.ID)
	if err != nil {
		return nil, WrapError(op, err)
	}

	exclusions := make([]protocol.CredentialDescriptor, len(existing))
	for i, a := range existing {
		exclusions[i] = a.Descriptor()
	}

	options, session, err := s.webauthn.BeginRegistration(
		newCeremonyUser(account, existing),
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, WrapError(op, err)
	}

	userID := account.ID
	if err := s.storeChallenge(ctx, CeremonyRegistration, &userID, session); err != nil {
		return nil, WrapError(op, err)
	}

	return options, nil
}

// VerifyRegistration checks an attestation response against the pending
// challenge for account and stores the new authenticator.
//
// The challenge is consumed before any verification, so a failed attempt
// cannot be retried with the same options.
func (s *Service) VerifyRegistration(ctx context.Context, account Account, response *protocol.ParsedCredentialCreationData) (*Authenticator, error) {
	const op = "verify registration"

	if response == nil {
		return nil, NewError(op, ErrInvalidResponse)
	}

	challenge, err := s.consumeChallenge(ctx, CeremonyRegistration, response.Response.CollectedClientData.Challenge)
	if err != nil {
		return nil, WrapError(op, err)
	}
	if challenge.UserID == nil || *challenge.UserID != account.ID {
		return nil, NewError(op, ErrChallengeNotFound)
	}

	existing, err := s.credentials.ListForUser(ctx, account.ID)
	if err != nil {
		return nil, WrapError(op, err)
	}

	credential, err := s.webauthn.CreateCredential(newCeremonyUser(account, existing), challenge.Session, response)
	if err != nil {
		s.log.WarnContext(ctx, "registration response rejected",
			logger.String("user_id", account.ID.String()),
			logger.Error(err))
		return nil, verificationError(op, ErrRegistrationVerificationFailed, err)
	}

	record := newAuthenticator(account.ID, credential, s.now())
	if err := s.credentials.Save(ctx, record); err != nil {
		if errors.Is(err, ErrCredentialExists) {
			return nil, verificationError(op, ErrRegistrationVerificationFailed, err)
		}
		return nil, WrapError(op, err)
	}

	s.log.InfoContext(ctx, "authenticator registered",
		logger.String("user_id", account.ID.String()),
		logger.String("authenticator_id", record.ID.String()))

	return record, nil
}

// GenerateAuthenticationOptions creates an authentication challenge. When
// userID is set and the user has credentials, the options are restricted
// to them; otherwise the discoverable-credential flow is used.
func (s *Service) GenerateAuthenticationOptions(ctx context.Context, userID *uuid.UUID) (*protocol.CredentialAssertion, error) {
	const op = "generate authentication options"

	var (
		options *protocol.CredentialAssertion
		session *webauthn.SessionData
		boundTo *uuid.UUID
		err     error
	)

	if userID != nil {
		existing, listErr := s.credentials.ListForUser(ctx, *userID)
		if listErr != nil {
			return nil, WrapError(op, listErr)
		}
		if len(existing) > 0 {
			id := *userID
			boundTo = &id
			options, session, err = s.webauthn.BeginLogin(newCeremonyUser(Account{ID: id}, existing))
		}
	}
	if boundTo == nil {
		options, session, err = s.webauthn.BeginDiscoverableLogin()
	}
	if err != nil {
		return nil, WrapError(op, err)
	}

	if err := s.storeChallenge(ctx, CeremonyAuthentication, boundTo, session); err != nil {
		return nil, WrapError(op, err)
	}

	return options, nil
}

// VerifyAuthentication checks an assertion response and returns the
// matching authenticator with its counter advanced. The owner is
// Authenticator.UserID.
func (s *Service) VerifyAuthentication(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*Authenticator, error) {
	const op = "verify authentication"

	if response == nil || len(response.RawID) == 0 {
		return nil, NewError(op, ErrInvalidResponse)
	}

	// Consume first so the challenge is spent even if the lookup below fails.
	challenge, challengeErr := s.consumeChallenge(ctx, CeremonyAuthentication, response.Response.CollectedClientData.Challenge)

	stored, err := s.credentials.FindByCredentialID(ctx, response.RawID)
	if err != nil {
		return nil, WrapError(op, err)
	}
	if challengeErr != nil {
		return nil, WrapError(op, challengeErr)
	}
	if challenge.UserID != nil && *challenge.UserID != stored.UserID {
		return nil, verificationError(op, ErrAuthenticationVerificationFailed,
			errors.New("credential is not allowed for this challenge"))
	}

	owned, err := s.credentials.ListForUser(ctx, stored.UserID)
	if err != nil {
		return nil, WrapError(op, err)
	}
	owner := newCeremonyUser(Account{ID: stored.UserID}, owned)

	var validated *webauthn.Credential
	if len(challenge.Session.UserID) == 0 {
		validated, err = s.webauthn.ValidateDiscoverableLogin(
			func(_, userHandle []byte) (webauthn.User, error) {
				if !bytes.Equal(userHandle, owner.WebAuthnID()) {
					return nil, errUserHandleMismatch
				}
				return owner, nil
			},
			challenge.Session,
			response,
		)
	} else {
		validated, err = s.webauthn.ValidateLogin(owner, challenge.Session, response)
	}
	if err != nil {
		s.log.WarnContext(ctx, "authentication response rejected",
			logger.String("authenticator_id", stored.ID.String()),
			logger.Error(err))
		return nil, verificationError(op, ErrAuthenticationVerificationFailed, err)
	}

	previous := stored.SignCount
	next := response.Response.AuthenticatorData.Counter
	if !counterAdvanced(previous, next) {
		s.log.WarnContext(ctx, "signature counter did not advance",
			logger.String("user_id", stored.UserID.String()),
			logger.String("authenticator_id", stored.ID.String()),
			logger.Int64("stored_count", int64(previous)),
			logger.Int64("asserted_count", int64(next)))
		return nil, NewError(op, ErrPossibleCloneDetected)
	}

	now := s.now().UTC()
	updated := stored.Clone()
	updated.SignCount = next
	updated.LastUsedAt = &now
	updated.Flags.UserPresent = validated.Flags.UserPresent
	updated.Flags.UserVerified = validated.Flags.UserVerified
	updated.Flags.BackupState = validated.Flags.BackupState

	if err := s.credentials.Update(ctx, updated, previous); err != nil {
		if errors.Is(err, ErrCounterConflict) {
			s.log.WarnContext(ctx, "signature counter changed during verification",
				logger.String("authenticator_id", stored.ID.String()))
			return nil, NewError(op, ErrPossibleCloneDetected)
		}
		return nil, WrapError(op, err)
	}

	return updated, nil
}

// ListAuthenticators returns the user's registered authenticators.
func (s *Service) ListAuthenticators(ctx context.Context, userID uuid.UUID) ([]*Authenticator, error) {
	records, err := s.credentials.ListForUser(ctx, userID)
	if err != nil {
		return nil, WrapError("list authenticators", err)
	}
	return records, nil
}

// PruneChallenges removes expired challenges when the store supports it.
func (s *Service) PruneChallenges(ctx context.Context) (int64, error) {
	pruner, ok := s.challenges.(ChallengePruner)
	if !ok {
		return 0, nil
	}
	n, err := pruner.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, WrapError("prune challenges", err)
	}
	return n, nil
}

func (s *Service) storeChallenge(ctx context.Context, ceremony Ceremony, userID *uuid.UUID, session *webauthn.SessionData) error {
	ttl := s.config.ChallengeTTL
	c := &Challenge{
		Ceremony:  ceremony,
		Value:     session.Challenge,
		UserID:    userID,
		Session:   *session,
		ExpiresAt: s.now().UTC().Add(ttl),
	}
	return s.challenges.Put(ctx, c, ttl)
}

func (s *Service) consumeChallenge(ctx context.Context, ceremony Ceremony, value string) (*Challenge, error) {
	if value == "" {
		return nil, ErrChallengeNotFound
	}
	c, err := s.challenges.GetAndConsume(ctx, ChallengeKey(ceremony, value))
	if err != nil {
		return nil, err
	}
	if c.Expired(s.now()) {
		return nil, ErrChallengeExpired
	}
	return c, nil
}

// counterAdvanced reports whether next is an acceptable successor of the
// stored counter. Authenticators that never count report zero forever.
func counterAdvanced(stored, next uint32) bool {
	if stored == 0 && next == 0 {
		return true
	}
	return next > stored
}
