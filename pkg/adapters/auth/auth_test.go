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

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/pkg/token"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestAuthenticator(t *testing.T) (*BearerAuthenticator, *token.Issuer) {
	t.Helper()
	issuer, err := token.NewIssuer(&token.Config{Secret: testSecret})
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	a, err := NewBearerAuthenticator(&BearerConfig{Verifier: issuer})
	if err != nil {
		t.Fatalf("NewBearerAuthenticator: %v", err)
	}
	return a, issuer
}

func TestNewBearerAuthenticator_RequiresVerifier(t *testing.T) {
	if _, err := NewBearerAuthenticator(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := NewBearerAuthenticator(&BearerConfig{}); err == nil {
		t.Error("expected error for missing verifier")
	}
}

func TestBearerAuthenticator_AuthenticateHTTP(t *testing.T) {
	a, issuer := newTestAuthenticator(t)
	subject := uuid.New()

	access, err := issuer.IssueAccess(subject)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, err := issuer.IssueRefresh(subject)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid access token", "Bearer " + access, nil},
		{"lower case scheme", "bearer " + access, nil},
		{"refresh token rejected", "Bearer " + refresh, token.ErrWrongKind},
		{"missing header", "", ErrMissingToken},
		{"basic scheme", "Basic dXNlcjpwYXNz", ErrMissingToken},
		{"empty token", "Bearer ", ErrMissingToken},
		{"garbage token", "Bearer not.a.jwt", token.ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			identity, err := a.AuthenticateHTTP(req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if identity.Subject != subject {
				t.Errorf("subject = %s, want %s", identity.Subject, subject)
			}
			if identity.Attributes["auth_method"] != "bearer" {
				t.Errorf("auth_method = %q", identity.Attributes["auth_method"])
			}
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	a, issuer := newTestAuthenticator(t)
	subject := uuid.New()
	access, _ := issuer.IssueAccess(subject)

	var seen uuid.UUID
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := SubjectFromRequest(r)
		if err != nil {
			t.Errorf("SubjectFromRequest: %v", err)
		}
		seen = id
		w.WriteHeader(http.StatusNoContent)
	})
	onError := func(w http.ResponseWriter, _ *http.Request, _ error) {
		w.WriteHeader(http.StatusUnauthorized)
	}
	handler := HTTPMiddleware(a, onError)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if seen != subject {
		t.Errorf("subject = %s, want %s", seen, subject)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestSubjectFromContext_Missing(t *testing.T) {
	if _, err := SubjectFromContext(context.Background()); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("want ErrUnauthenticated, got %v", err)
	}
}
