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

// Package token issues and verifies the HMAC-signed bearer tokens handed out
// after a successful login.
//
// Every token carries three claims the rest of the service relies on:
// "sub" (the user ID), "exp" (absolute expiry) and "type" ("access" or
// "refresh"). Tokens are stateless; nothing is persisted and there is no
// revocation list.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tags a token with the purpose it was issued for.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// TokenTypeBearer is the token_type value returned to clients.
const TokenTypeBearer = "bearer"

const minSecretLength = 32

// Config configures an Issuer.
type Config struct {
	// Secret is the shared HMAC key. At least 32 bytes.
	Secret string `yaml:"secret" json:"-"`

	// Algorithm is one of HS256, HS384, HS512. Default HS256.
	Algorithm string `yaml:"algorithm" json:"algorithm"`

	// AccessTTL defaults to 30 minutes.
	AccessTTL time.Duration `yaml:"access_ttl" json:"access_ttl"`

	// RefreshTTL defaults to 7 days.
	RefreshTTL time.Duration `yaml:"refresh_ttl" json:"refresh_ttl"`

	// Issuer is written to and required in the "iss" claim when non-empty.
	Issuer string `yaml:"issuer" json:"issuer"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = jwt.SigningMethodHS256.Alg()
	}
	if c.AccessTTL == 0 {
		c.AccessTTL = 30 * time.Minute
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = 7 * 24 * time.Hour
	}
}

// Validate checks the configuration. Only symmetric HMAC algorithms are
// accepted; "none" and asymmetric algorithms are rejected.
func (c *Config) Validate() error {
	if len(c.Secret) < minSecretLength {
		return fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	if _, err := signingMethod(c.Algorithm); err != nil {
		return err
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	if c.AccessTTL >= c.RefreshTTL {
		return errors.New("access token lifetime must be shorter than refresh token lifetime")
	}
	return nil
}

func signingMethod(alg string) (*jwt.SigningMethodHMAC, error) {
	switch alg {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported token algorithm %q (must be HS256, HS384 or HS512)", alg)
	}
}

// Claims is the JWT payload.
type Claims struct {
	Kind Kind `json:"type"`
	jwt.RegisteredClaims
}

// Verified is the result of a successful verification.
type Verified struct {
	Subject   uuid.UUID
	Kind      Kind
	ExpiresAt time.Time
}

// Pair is the response body of every successful login or refresh.
type Pair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		i.now = now
	}
}

// Issuer signs and verifies tokens. It holds only read-only state and is
// safe for concurrent use.
type Issuer struct {
	secret     []byte
	method     *jwt.SigningMethodHMAC
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
	parser     *jwt.Parser
}

// NewIssuer builds an Issuer from cfg. Defaults are applied to a copy, the
// caller's Config is not modified.
func NewIssuer(cfg *Config, opts ...Option) (*Issuer, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	c := *cfg
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token config: %w", err)
	}
	method, _ := signingMethod(c.Algorithm)

	i := &Issuer{
		secret:     []byte(c.Secret),
		method:     method,
		accessTTL:  c.AccessTTL,
		refreshTTL: c.RefreshTTL,
		issuer:     c.Issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(i.issuer))
	}
	i.parser = jwt.NewParser(parserOpts...)
	return i, nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// IssueAccess returns a signed access token for userID.
func (i *Issuer) IssueAccess(userID uuid.UUID) (string, error) {
	return i.issue(userID, KindAccess, i.accessTTL)
}

// IssueRefresh returns a signed refresh token for userID.
func (i *Issuer) IssueRefresh(userID uuid.UUID) (string, error) {
	return i.issue(userID, KindRefresh, i.refreshTTL)
}

// IssuePair returns a fresh access and refresh token for userID.
func (i *Issuer) IssuePair(userID uuid.UUID) (*Pair, error) {
	access, err := i.IssueAccess(userID)
	if err != nil {
		return nil, err
	}
	refresh, err := i.IssueRefresh(userID)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    TokenTypeBearer,
		ExpiresIn:    int64(i.accessTTL / time.Second),
	}, nil
}

func (i *Issuer) issue(userID uuid.UUID, kind Kind, ttl time.Duration) (string, error) {
	if userID == uuid.Nil {
		return "", errors.New("cannot issue token for nil user id")
	}
	now := i.now()
	claims := Claims{
		Kind: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(i.method, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks the signature, expiry and kind of raw and returns its
// subject. Failures match ErrInvalidToken and one of ErrInvalidSignature,
// ErrExpired, ErrWrongKind, ErrMalformedSubject or ErrMalformed.
func (i *Issuer) Verify(raw string, expected Kind) (*Verified, error) {
	var claims Claims
	_, err := i.parser.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if claims.Kind != expected {
		return nil, ErrWrongKind
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil || subject == uuid.Nil {
		return nil, ErrMalformedSubject
	}
	return &Verified{
		Subject:   subject,
		Kind:      claims.Kind,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Refresh verifies a refresh token and issues a new pair for the same
// subject. The presented refresh token stays valid until it expires.
func (i *Issuer) Refresh(refreshToken string) (*Pair, error) {
	verified, err := i.Verify(refreshToken, KindRefresh)
	if err != nil {
		return nil, err
	}
	return i.IssuePair(verified.Subject)
}

// classify maps jwt parser errors onto the package sentinels. The parser
// checks the signature before any time based claim.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
