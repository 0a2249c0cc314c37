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

// Package authn orchestrates sign-in: password verification, passkey
// ceremonies and token issuance over a user directory.
package authn

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/internal/password"
	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/logger"
	"github.com/jeremyhahn/go-passkey-auth/pkg/correlation"
	"github.com/jeremyhahn/go-passkey-auth/pkg/metrics"
	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
	"github.com/jeremyhahn/go-passkey-auth/pkg/user"
	"github.com/jeremyhahn/go-passkey-auth/pkg/validation"
	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

// Params contains dependencies for creating a Service.
type Params struct {
	Users      user.Directory
	Hasher     *password.Hasher
	Tokens     *token.Issuer
	Ceremonies *webauthn.Service

	// Logger defaults to a no-op logger.
	Logger logger.Logger

	// Audit receives security events. Defaults to discarding them.
	Audit audit.AuditAdapter

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service is the authentication orchestrator.
type Service struct {
	users      user.Directory
	hasher     *password.Hasher
	tokens     *token.Issuer
	ceremonies *webauthn.Service
	log        logger.Logger
	audit      audit.AuditAdapter
	now        func() time.Time
}

// Registration is the input of Register. Password may be empty for
// passkey-only accounts.
type Registration struct {
	Email    string
	Password string
	FullName string
}

// Profile is a user together with their registered passkeys.
type Profile struct {
	User           *user.User
	Authenticators []*webauthn.Authenticator
}

// NewService creates a new orchestrator.
func NewService(p Params) (*Service, error) {
	switch {
	case p.Users == nil:
		return nil, errors.New("user directory is required")
	case p.Hasher == nil:
		return nil, errors.New("password hasher is required")
	case p.Tokens == nil:
		return nil, errors.New("token issuer is required")
	case p.Ceremonies == nil:
		return nil, errors.New("ceremony service is required")
	}

	s := &Service{
		users:      p.Users,
		hasher:     p.Hasher,
		tokens:     p.Tokens,
		ceremonies: p.Ceremonies,
		log:        p.Logger,
		audit:      p.Audit,
		now:        p.Clock,
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	if s.audit == nil {
		s.audit = audit.NopAuditAdapter{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Register creates an account. Returns user.ErrDuplicateEmail when the
// email is taken and ErrInvalidInput for malformed fields.
func (s *Service) Register(ctx context.Context, reg Registration) (*user.User, error) {
	email := validation.NormalizeEmail(reg.Email)
	if err := validation.ValidateEmail(email); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validation.ValidateFullName(reg.FullName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var hash string
	if reg.Password != "" {
		if err := validation.ValidatePassword(reg.Password); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		var err error
		hash, err = s.hasher.Hash(reg.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	u := user.New(email, reg.FullName, hash, s.now())
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, user.ErrDuplicateEmail) {
			s.recordEvent(ctx, &audit.AuditEvent{
				EventType: audit.EventAccountRegister,
				Outcome:   audit.OutcomeFailure,
				Reason:    "duplicate email",
			})
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.InfoContext(ctx, "user registered", logger.String("user_id", u.ID.String()))
	s.recordEvent(ctx, &audit.AuditEvent{
		EventType:   audit.EventAccountRegister,
		Outcome:     audit.OutcomeSuccess,
		PrincipalID: u.ID.String(),
	})
	return u, nil
}

// LoginWithPassword verifies email and password and issues a token pair.
//
// Unknown email, passkey-only account, wrong password and inactive account
// all return ErrInvalidCredentials after the same amount of hashing work.
// Directory failures are returned wrapped and never as ErrInvalidCredentials.
func (s *Service) LoginWithPassword(ctx context.Context, email, pass string) (*token.Pair, error) {
	u, err := s.users.FindByEmail(ctx, validation.NormalizeEmail(email))
	if err != nil && !errors.Is(err, user.ErrUserNotFound) {
		metrics.RecordLogin(metrics.MethodPassword, metrics.StatusError)
		return nil, fmt.Errorf("find user: %w", err)
	}

	var ok bool
	if u == nil || !u.HasPassword() {
		s.hasher.VerifyDummy(pass)
	} else {
		ok = s.hasher.Verify(pass, u.PasswordHash)
	}

	if !ok || !u.Active {
		metrics.RecordLogin(metrics.MethodPassword, metrics.StatusRejected)
		s.log.WarnContext(ctx, "password sign-in rejected")
		event := &audit.AuditEvent{
			EventType: audit.EventLogin,
			Outcome:   audit.OutcomeFailure,
			Method:    metrics.MethodPassword,
			Reason:    "invalid credentials",
		}
		if u != nil {
			event.PrincipalID = u.ID.String()
		}
		s.recordEvent(ctx, event)
		return nil, ErrInvalidCredentials
	}

	return s.completeLogin(ctx, metrics.MethodPassword, u.ID)
}

// Refresh exchanges a valid refresh token for a new pair for the same
// subject. Rejections match token.ErrInvalidToken, including tokens whose
// subject no longer exists or has been deactivated. Directory failures are
// returned wrapped.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	v, err := s.tokens.Verify(refreshToken, token.KindRefresh)
	if err != nil {
		s.rejectRefresh(ctx, "", "invalid token")
		return nil, err
	}

	u, err := s.users.FindByID(ctx, v.Subject)
	switch {
	case errors.Is(err, user.ErrUserNotFound):
		s.rejectRefresh(ctx, v.Subject.String(), "unknown account")
		return nil, fmt.Errorf("%w: unknown subject", token.ErrInvalidToken)
	case err != nil:
		metrics.RecordLogin(metrics.MethodRefresh, metrics.StatusError)
		return nil, fmt.Errorf("find user: %w", err)
	case !u.Active:
		s.rejectRefresh(ctx, v.Subject.String(), "account inactive")
		return nil, fmt.Errorf("%w: account inactive", token.ErrInvalidToken)
	}

	pair, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		s.rejectRefresh(ctx, v.Subject.String(), "invalid token")
		return nil, err
	}
	metrics.RecordLogin(metrics.MethodRefresh, metrics.StatusSuccess)
	metrics.RecordTokenIssued(string(token.KindAccess))
	metrics.RecordTokenIssued(string(token.KindRefresh))
	return pair, nil
}

// BeginPasskeyRegistration returns creation options for a signed-in user.
// Deactivated accounts get ErrInvalidCredentials.
func (s *Service) BeginPasskeyRegistration(ctx context.Context, userID uuid.UUID) (*protocol.CredentialCreation, error) {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	options, err := s.ceremonies.GenerateRegistrationOptions(ctx, account(u))
	recordCeremony(webauthn.CeremonyRegistration, metrics.StageOptions, err)
	return options, err
}

// FinishPasskeyRegistration verifies an attestation for a signed-in user
// and stores the new passkey.
func (s *Service) FinishPasskeyRegistration(ctx context.Context, userID uuid.UUID, response *protocol.ParsedCredentialCreationData) (*webauthn.Authenticator, error) {
	u, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	record, err := s.ceremonies.VerifyRegistration(ctx, account(u), response)
	recordCeremony(webauthn.CeremonyRegistration, metrics.StageVerify, err)

	event := &audit.AuditEvent{
		EventType:   audit.EventPasskeyRegister,
		Outcome:     audit.OutcomeSuccess,
		PrincipalID: userID.String(),
	}
	if err != nil {
		event.Outcome = audit.OutcomeFailure
		event.Reason = err.Error()
	} else {
		event.Metadata = map[string]string{"authenticator_id": record.ID.String()}
	}
	s.recordEvent(ctx, event)
	return record, err
}

// PasskeyLoginOptions returns request options. A known email with passkeys
// narrows the allowed credentials; anything else yields discoverable
// options, so the response does not reveal whether the account exists.
func (s *Service) PasskeyLoginOptions(ctx context.Context, email string) (*protocol.CredentialAssertion, error) {
	var userID *uuid.UUID
	if email != "" {
		u, err := s.users.FindByEmail(ctx, validation.NormalizeEmail(email))
		switch {
		case err == nil && u.Active:
			userID = &u.ID
		case err != nil && !errors.Is(err, user.ErrUserNotFound):
			return nil, fmt.Errorf("find user: %w", err)
		}
	}

	options, err := s.ceremonies.GenerateAuthenticationOptions(ctx, userID)
	recordCeremony(webauthn.CeremonyAuthentication, metrics.StageOptions, err)
	return options, err
}

// LoginWithPasskey verifies an assertion and issues a token pair for the
// credential's owner. Ceremony rejections are returned unchanged; an
// owner that is missing or inactive yields ErrInvalidCredentials.
func (s *Service) LoginWithPasskey(ctx context.Context, response *protocol.ParsedCredentialAssertionData) (*token.Pair, error) {
	record, err := s.ceremonies.VerifyAuthentication(ctx, response)
	recordCeremony(webauthn.CeremonyAuthentication, metrics.StageVerify, err)
	if err != nil {
		credentialID := rawCredentialID(response)
		if errors.Is(err, webauthn.ErrPossibleCloneDetected) {
			metrics.RecordCloneDetection()
			s.log.WarnContext(ctx, "possible cloned authenticator",
				logger.String("credential_id", credentialID))
			s.recordEvent(ctx, &audit.AuditEvent{
				EventType: audit.EventCloneDetected,
				Outcome:   audit.OutcomeFailure,
				Method:    metrics.MethodPasskey,
				Metadata:  map[string]string{"credential_id": credentialID},
			})
		}
		if webauthn.IsRejection(err) {
			metrics.RecordLogin(metrics.MethodPasskey, metrics.StatusRejected)
			s.recordEvent(ctx, &audit.AuditEvent{
				EventType: audit.EventLogin,
				Outcome:   audit.OutcomeFailure,
				Method:    metrics.MethodPasskey,
				Reason:    err.Error(),
				Metadata:  map[string]string{"credential_id": credentialID},
			})
		} else {
			metrics.RecordLogin(metrics.MethodPasskey, metrics.StatusError)
		}
		return nil, err
	}

	u, err := s.users.FindByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			metrics.RecordLogin(metrics.MethodPasskey, metrics.StatusRejected)
			return nil, ErrInvalidCredentials
		}
		metrics.RecordLogin(metrics.MethodPasskey, metrics.StatusError)
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !u.Active {
		metrics.RecordLogin(metrics.MethodPasskey, metrics.StatusRejected)
		s.recordEvent(ctx, &audit.AuditEvent{
			EventType:   audit.EventLogin,
			Outcome:     audit.OutcomeFailure,
			Method:      metrics.MethodPasskey,
			PrincipalID: u.ID.String(),
			Reason:      "account inactive",
		})
		return nil, ErrInvalidCredentials
	}

	return s.completeLogin(ctx, metrics.MethodPasskey, u.ID)
}

// Authenticate verifies an access token and returns its subject.
func (s *Service) Authenticate(_ context.Context, accessToken string) (uuid.UUID, error) {
	v, err := s.tokens.Verify(accessToken, token.KindAccess)
	if err != nil {
		return uuid.Nil, err
	}
	return v.Subject, nil
}

// Profile returns the user and their passkeys.
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	records, err := s.ceremonies.ListAuthenticators(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, Authenticators: records}, nil
}

func (s *Service) completeLogin(ctx context.Context, method string, userID uuid.UUID) (*token.Pair, error) {
	pair, err := s.tokens.IssuePair(userID)
	if err != nil {
		metrics.RecordLogin(method, metrics.StatusError)
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	if err := s.users.TouchLastLogin(ctx, userID, s.now()); err != nil {
		s.log.WarnContext(ctx, "failed to record last login",
			logger.String("user_id", userID.String()),
			logger.Error(err))
	}

	metrics.RecordLogin(method, metrics.StatusSuccess)
	metrics.RecordTokenIssued(string(token.KindAccess))
	metrics.RecordTokenIssued(string(token.KindRefresh))
	s.log.InfoContext(ctx, "user signed in",
		logger.String("user_id", userID.String()),
		logger.String("method", method))
	s.recordEvent(ctx, &audit.AuditEvent{
		EventType:   audit.EventLogin,
		Outcome:     audit.OutcomeSuccess,
		Method:      method,
		PrincipalID: userID.String(),
	})
	return pair, nil
}

// activeUser loads the account behind an access token. Deactivated
// accounts are reported as ErrInvalidCredentials.
func (s *Service) activeUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !u.Active {
		s.log.WarnContext(ctx, "passkey enrollment by inactive account rejected",
			logger.String("user_id", userID.String()))
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *Service) rejectRefresh(ctx context.Context, principal, reason string) {
	metrics.RecordLogin(metrics.MethodRefresh, metrics.StatusRejected)
	s.recordEvent(ctx, &audit.AuditEvent{
		EventType:   audit.EventTokenRefresh,
		Outcome:     audit.OutcomeFailure,
		Method:      metrics.MethodRefresh,
		PrincipalID: principal,
		Reason:      reason,
	})
}

// recordEvent stamps and forwards event to the audit adapter. Audit
// failures are logged and never fail the caller.
func (s *Service) recordEvent(ctx context.Context, event *audit.AuditEvent) {
	event.Timestamp = s.now()
	event.RequestID = correlation.GetCorrelationID(ctx)
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.log.ErrorContext(ctx, "failed to record audit event",
			logger.String("event_type", string(event.EventType)),
			logger.Error(err))
	}
}

func account(u *user.User) webauthn.Account {
	return webauthn.Account{
		ID:          u.ID,
		Name:        u.Email,
		DisplayName: u.DisplayName(),
	}
}

func rawCredentialID(response *protocol.ParsedCredentialAssertionData) string {
	if response == nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(response.RawID)
}

func recordCeremony(ceremony webauthn.Ceremony, stage string, err error) {
	status := metrics.StatusSuccess
	switch {
	case err == nil:
	case webauthn.IsRejection(err):
		status = metrics.StatusRejected
	default:
		status = metrics.StatusError
	}
	metrics.RecordCeremony(string(ceremony), stage, status)
}
