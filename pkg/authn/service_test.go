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

package authn

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jeremyhahn/go-passkey-auth/internal/password"
	"github.com/jeremyhahn/go-passkey-auth/internal/testutil"
	"github.com/jeremyhahn/go-passkey-auth/pkg/adapters/audit"
	"github.com/jeremyhahn/go-passkey-auth/pkg/correlation"
	"github.com/jeremyhahn/go-passkey-auth/pkg/metrics"
	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
	"github.com/jeremyhahn/go-passkey-auth/pkg/user"
	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

const (
	testEmail    = "a@x.com"
	testPassword = "p@ss1234"
	testSecret   = "0123456789abcdef0123456789abcdef"
)

type fixture struct {
	svc        *Service
	users      *user.MemoryDirectory
	tokens     *token.Issuer
	ceremonies *webauthn.Service
	creds      *webauthn.MemoryCredentialStore
	audit      *audit.MemoryAuditAdapter
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithDirectory(t, nil)
}

func newFixtureWithDirectory(t *testing.T, dir user.Directory) *fixture {
	t.Helper()

	f := &fixture{
		users: user.NewMemoryDirectory(),
		creds: webauthn.NewMemoryCredentialStore(),
		audit: audit.NewMemoryAuditAdapter(0),
	}
	if dir == nil {
		dir = f.users
	}

	hasher, err := password.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	f.tokens, err = token.NewIssuer(&token.Config{Secret: testSecret})
	require.NoError(t, err)

	f.ceremonies, err = webauthn.NewService(webauthn.ServiceParams{
		Config: &webauthn.Config{
			RPID:          testutil.RPID,
			RPDisplayName: testutil.RPName,
			RPOrigins:     []string{testutil.RPOrigin},
		},
		Credentials: f.creds,
		Challenges:  webauthn.NewMemoryChallengeStore(),
	})
	require.NoError(t, err)

	f.svc, err = NewService(Params{
		Users:      dir,
		Hasher:     hasher,
		Tokens:     f.tokens,
		Ceremonies: f.ceremonies,
		Audit:      f.audit,
	})
	require.NoError(t, err)
	return f
}

// enrollPasskey registers a passkey for u and returns it.
func (f *fixture) enrollPasskey(t *testing.T, u *user.User) *testutil.Passkey {
	t.Helper()
	ctx := context.Background()

	passkey := testutil.NewPasskey(u.ID[:])
	options, err := f.svc.BeginPasskeyRegistration(ctx, u.ID)
	require.NoError(t, err)

	response, err := passkey.Attest(options)
	require.NoError(t, err)

	_, err = f.svc.FinishPasskeyRegistration(ctx, u.ID, response)
	require.NoError(t, err)
	return passkey
}

type failingDirectory struct {
	user.Directory
	err error
}

func (d *failingDirectory) FindByEmail(context.Context, string) (*user.User, error) {
	return nil, d.err
}

func (d *failingDirectory) FindByID(context.Context, uuid.UUID) (*user.User, error) {
	return nil, d.err
}

func TestNewService_RequiresDependencies(t *testing.T) {
	_, err := NewService(Params{})
	assert.EqualError(t, err, "user directory is required")

	_, err = NewService(Params{Users: user.NewMemoryDirectory()})
	assert.EqualError(t, err, "password hasher is required")
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{
		Email:    "  A@X.com ",
		Password: testPassword,
		FullName: "Alice",
	})
	require.NoError(t, err)
	assert.Equal(t, testEmail, u.Email)
	assert.True(t, u.Active)
	assert.NotEqual(t, testPassword, u.PasswordHash)
	assert.NotEmpty(t, u.PasswordHash)

	_, err = f.svc.Register(ctx, Registration{Email: "A@x.com", Password: testPassword})
	assert.ErrorIs(t, err, user.ErrDuplicateEmail)
}

func TestRegister_PasskeyOnly(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.Register(context.Background(), Registration{Email: testEmail})
	require.NoError(t, err)
	assert.False(t, u.HasPassword())
}

func TestRegister_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		reg  Registration
	}{
		{"bad email", Registration{Email: "not-an-email", Password: testPassword}},
		{"short password", Registration{Email: testEmail, Password: "short"}},
	}

	f := newFixture(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(context.Background(), tt.reg)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestLoginWithPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	pair, err := f.svc.LoginWithPassword(ctx, "A@X.COM", testPassword)
	require.NoError(t, err)
	assert.Equal(t, token.TokenTypeBearer, pair.TokenType)
	assert.Equal(t, int64(f.tokens.AccessTTL().Seconds()), pair.ExpiresIn)

	subject, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, subject)

	stored, err := f.users.FindByID(ctx, u.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLoginWithPassword_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, Registration{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, Registration{Email: "passkey@x.com"})
	require.NoError(t, err)
	inactive, err := f.svc.Register(ctx, Registration{Email: "off@x.com", Password: testPassword})
	require.NoError(t, err)
	require.NoError(t, f.users.SetActive(inactive.ID, false))

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{"wrong password", testEmail, "wrong-password"},
		{"unknown email", "nobody@x.com", testPassword},
		{"passkey only account", "passkey@x.com", testPassword},
		{"inactive account", "off@x.com", testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := f.svc.LoginWithPassword(ctx, tt.email, tt.password)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
			assert.Nil(t, pair)
		})
	}
}

func TestLoginWithPassword_DirectoryFailure(t *testing.T) {
	storeErr := errors.New("connection refused")
	f := newFixtureWithDirectory(t, &failingDirectory{err: storeErr})

	_, err := f.svc.LoginWithPassword(context.Background(), testEmail, testPassword)
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginWithPassword_RecordsMetrics(t *testing.T) {
	metrics.Enable()
	metrics.LoginAttemptsTotal.Reset()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, Registration{Email: testEmail, Password: testPassword})
	require.NoError(t, err)

	_, err = f.svc.LoginWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)
	_, _ = f.svc.LoginWithPassword(ctx, testEmail, "wrong-password")

	assert.Equal(t, 1.0, promtest.ToFloat64(
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.MethodPassword, metrics.StatusSuccess)))
	assert.Equal(t, 1.0, promtest.ToFloat64(
		metrics.LoginAttemptsTotal.WithLabelValues(metrics.MethodPassword, metrics.StatusRejected)))
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	pair, err := f.svc.LoginWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	refreshed, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	subject, err := f.svc.Authenticate(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, subject)

	_, err = f.svc.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	_, err = f.svc.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestRefresh_RejectsInactiveOrUnknownAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	pair, err := f.svc.LoginWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	require.NoError(t, f.users.SetActive(u.ID, false))
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, token.ErrInvalidToken)

	refreshes := f.events(t, audit.EventTokenRefresh)
	require.Len(t, refreshes, 1)
	assert.Equal(t, audit.OutcomeFailure, refreshes[0].Outcome)
	assert.Equal(t, u.ID.String(), refreshes[0].PrincipalID)
	assert.Equal(t, "account inactive", refreshes[0].Reason)

	require.NoError(t, f.users.SetActive(u.ID, true))
	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	orphan, err := f.tokens.IssueRefresh(uuid.New())
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, orphan)
	assert.ErrorIs(t, err, token.ErrInvalidToken)
}

func TestRefresh_DirectoryFailure(t *testing.T) {
	f := newFixtureWithDirectory(t, &failingDirectory{err: errors.New("db down")})

	refresh, err := f.tokens.IssueRefresh(uuid.New())
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), refresh)
	require.Error(t, err)
	assert.NotErrorIs(t, err, token.ErrInvalidToken)
}

func TestAuthenticate_RejectsRefreshToken(t *testing.T) {
	f := newFixture(t)

	pair, err := f.tokens.IssuePair(uuid.New())
	require.NoError(t, err)

	_, err = f.svc.Authenticate(context.Background(), pair.RefreshToken)
	assert.ErrorIs(t, err, token.ErrWrongKind)
}

func TestLoginWithPasskey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail, FullName: "Alice"})
	require.NoError(t, err)
	passkey := f.enrollPasskey(t, u)

	options, err := f.svc.PasskeyLoginOptions(ctx, testEmail)
	require.NoError(t, err)
	require.Len(t, options.Response.AllowedCredentials, 1)

	passkey.Credential.Counter = 1
	response, err := passkey.Assert(options)
	require.NoError(t, err)

	pair, err := f.svc.LoginWithPasskey(ctx, response)
	require.NoError(t, err)

	subject, err := f.svc.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, subject)
}

func TestLoginWithPasskey_Discoverable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail})
	require.NoError(t, err)
	passkey := f.enrollPasskey(t, u)

	options, err := f.svc.PasskeyLoginOptions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, options.Response.AllowedCredentials)

	passkey.Credential.Counter = 1
	response, err := passkey.Assert(options)
	require.NoError(t, err)

	_, err = f.svc.LoginWithPasskey(ctx, response)
	require.NoError(t, err)
}

func TestPasskeyLoginOptions_UnknownEmail(t *testing.T) {
	f := newFixture(t)

	options, err := f.svc.PasskeyLoginOptions(context.Background(), "nobody@x.com")
	require.NoError(t, err)
	assert.Empty(t, options.Response.AllowedCredentials)
}

func TestLoginWithPasskey_CloneDetected(t *testing.T) {
	metrics.Enable()
	before := promtest.ToFloat64(metrics.CloneDetectionsTotal)

	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail})
	require.NoError(t, err)
	passkey := f.enrollPasskey(t, u)

	passkey.Credential.Counter = 5
	options, err := f.svc.PasskeyLoginOptions(ctx, testEmail)
	require.NoError(t, err)
	response, err := passkey.Assert(options)
	require.NoError(t, err)
	_, err = f.svc.LoginWithPasskey(ctx, response)
	require.NoError(t, err)

	passkey.Credential.Counter = 3
	options, err = f.svc.PasskeyLoginOptions(ctx, testEmail)
	require.NoError(t, err)
	response, err = passkey.Assert(options)
	require.NoError(t, err)

	pair, err := f.svc.LoginWithPasskey(ctx, response)
	assert.ErrorIs(t, err, webauthn.ErrPossibleCloneDetected)
	assert.Nil(t, pair)
	assert.Equal(t, before+1, promtest.ToFloat64(metrics.CloneDetectionsTotal))

	events := f.events(t, audit.EventCloneDetected)
	require.Len(t, events, 1)
	assert.Equal(t, audit.OutcomeFailure, events[0].Outcome)
	assert.NotEmpty(t, events[0].Metadata["credential_id"])
}

func TestLoginWithPasskey_InactiveOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail})
	require.NoError(t, err)
	passkey := f.enrollPasskey(t, u)
	require.NoError(t, f.users.SetActive(u.ID, false))

	options, err := f.svc.PasskeyLoginOptions(ctx, "")
	require.NoError(t, err)
	passkey.Credential.Counter = 1
	response, err := passkey.Assert(options)
	require.NoError(t, err)

	_, err = f.svc.LoginWithPasskey(ctx, response)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestPasskeyRegistration_InactiveAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail})
	require.NoError(t, err)

	options, err := f.svc.BeginPasskeyRegistration(ctx, u.ID)
	require.NoError(t, err)
	response, err := testutil.NewPasskey(u.ID[:]).Attest(options)
	require.NoError(t, err)

	require.NoError(t, f.users.SetActive(u.ID, false))

	_, err = f.svc.BeginPasskeyRegistration(ctx, u.ID)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.FinishPasskeyRegistration(ctx, u.ID, response)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	records, err := f.ceremonies.ListAuthenticators(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFinishPasskeyRegistration_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BeginPasskeyRegistration(context.Background(), uuid.New())
	assert.ErrorIs(t, err, user.ErrUserNotFound)
}

func TestProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.svc.Register(ctx, Registration{Email: testEmail, FullName: "Alice"})
	require.NoError(t, err)
	f.enrollPasskey(t, u)

	profile, err := f.svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, profile.User.ID)
	require.Len(t, profile.Authenticators, 1)
	assert.Equal(t, u.ID, profile.Authenticators[0].UserID)
	assert.WithinDuration(t, time.Now(), profile.Authenticators[0].CreatedAt, time.Minute)
}

// events returns the audit events of type t, newest first.
func (f *fixture) events(t *testing.T, eventType audit.EventType) []*audit.AuditEvent {
	t.Helper()
	events, err := f.audit.GetEvents(context.Background(), &audit.EventQuery{
		EventTypes: []audit.EventType{eventType},
	})
	require.NoError(t, err)
	return events
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t)
	ctx := correlation.WithCorrelationID(context.Background(), "req-42")

	u, err := f.svc.Register(ctx, Registration{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, Registration{Email: testEmail, Password: testPassword})
	require.ErrorIs(t, err, user.ErrDuplicateEmail)

	registrations := f.events(t, audit.EventAccountRegister)
	require.Len(t, registrations, 2)
	assert.Equal(t, audit.OutcomeFailure, registrations[0].Outcome)
	assert.Equal(t, audit.OutcomeSuccess, registrations[1].Outcome)
	assert.Equal(t, u.ID.String(), registrations[1].PrincipalID)
	assert.Equal(t, "req-42", registrations[1].RequestID)

	_, err = f.svc.LoginWithPassword(ctx, testEmail, "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.LoginWithPassword(ctx, testEmail, testPassword)
	require.NoError(t, err)

	logins := f.events(t, audit.EventLogin)
	require.Len(t, logins, 2)
	assert.Equal(t, audit.OutcomeSuccess, logins[0].Outcome)
	assert.Equal(t, "password", logins[0].Method)
	assert.Equal(t, audit.OutcomeFailure, logins[1].Outcome)
	assert.Equal(t, u.ID.String(), logins[1].PrincipalID)
	assert.Equal(t, "invalid credentials", logins[1].Reason)

	_, err = f.svc.Refresh(ctx, "garbage")
	require.Error(t, err)
	refreshes := f.events(t, audit.EventTokenRefresh)
	require.Len(t, refreshes, 1)
	assert.Equal(t, audit.OutcomeFailure, refreshes[0].Outcome)

	f.enrollPasskey(t, u)
	enrollments := f.events(t, audit.EventPasskeyRegister)
	require.Len(t, enrollments, 1)
	assert.Equal(t, audit.OutcomeSuccess, enrollments[0].Outcome)
	assert.NotEmpty(t, enrollments[0].Metadata["authenticator_id"])
}

type failingAuditor struct{}

func (failingAuditor) LogEvent(context.Context, *audit.AuditEvent) error {
	return errors.New("audit sink down")
}

func TestAuditFailureDoesNotFailOperation(t *testing.T) {
	f := newFixture(t)
	f.svc.audit = failingAuditor{}

	_, err := f.svc.Register(context.Background(), Registration{Email: testEmail, Password: testPassword})
	require.NoError(t, err)
	_, err = f.svc.LoginWithPassword(context.Background(), testEmail, testPassword)
	require.NoError(t, err)
}
