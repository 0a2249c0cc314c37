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

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-webauthn/webauthn/protocol"
	gowebauthn "github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jeremyhahn/go-passkey-auth/pkg/user"
	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var userRowColumns = []string{"id", "email", "full_name", "password_hash", "is_active", "last_login_at", "created_at", "updated_at"}

func TestUserRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	u := user.New("a@x.com", "Alice", "hash", time.Now())
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WithArgs(u.ID, "a@x.com", "Alice", "hash", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestUserRepository_CreatePasskeyOnlyStoresNullHash(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	u := user.New("a@x.com", "", "", time.Now())
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WithArgs(u.ID, "a@x.com", "", nil, true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestUserRepository_CreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := repo.Create(context.Background(), user.New("a@x.com", "", "", time.Now()))
	if !errors.Is(err, user.ErrDuplicateEmail) {
		t.Fatalf("want user.ErrDuplicateEmail, got %v", err)
	}
}

func TestUserRepository_FindByEmail(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	id := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow(id.String(), "a@x.com", "Alice", nil, true, nil, now, now)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("a@x.com").
		WillReturnRows(rows)

	got, err := repo.FindByEmail(context.Background(), "a@x.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if got.ID != id || got.Email != "a@x.com" || got.HasPassword() || got.LastLoginAt != nil {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestUserRepository_FindByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), uuid.New())
	if !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("want user.ErrUserNotFound, got %v", err)
	}
}

func TestUserRepository_FindDBError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(`(?s)^SELECT`).WillReturnError(errors.New("db down"))

	_, err := repo.FindByEmail(context.Background(), "a@x.com")
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
	if errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("store failure must not look like a missing user")
	}
}

func TestUserRepository_TouchLastLogin(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUserRepository(db)

	id := uuid.New()
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+last_login_at`).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)^UPDATE\s+users\s+SET\s+last_login_at`).
		WithArgs(sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.TouchLastLogin(context.Background(), id, time.Now()); err != nil {
		t.Fatalf("TouchLastLogin error: %v", err)
	}
	if err := repo.TouchLastLogin(context.Background(), id, time.Now()); !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("want user.ErrUserNotFound, got %v", err)
	}
}

var authenticatorRowColumns = []string{
	"id", "user_id", "credential_id", "public_key", "attestation_type", "aaguid",
	"transports", "attachment", "user_present", "user_verified", "backup_eligible", "backup_state",
	"sign_count", "created_at", "last_used_at",
}

func TestCredentialRepository_Save(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCredentialRepository(db)

	a := &webauthn.Authenticator{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		CredentialID: []byte{1, 2, 3},
		PublicKey:    []byte{4, 5},
		Transports:   []protocol.AuthenticatorTransport{protocol.USB, protocol.NFC},
		SignCount:    7,
		CreatedAt:    time.Now().UTC(),
	}
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+authenticators`).
		WithArgs(a.ID, a.UserID, a.CredentialID, a.PublicKey, "", sqlmock.AnyArg(),
			"usb,nfc", "", false, false, false, false, int64(7), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Save(context.Background(), a); err != nil {
		t.Fatalf("Save error: %v", err)
	}
}

func TestCredentialRepository_SaveDuplicate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCredentialRepository(db)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+authenticators`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Save(context.Background(), &webauthn.Authenticator{ID: uuid.New()})
	if !errors.Is(err, webauthn.ErrCredentialExists) {
		t.Fatalf("want webauthn.ErrCredentialExists, got %v", err)
	}
}

func TestCredentialRepository_FindByCredentialID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCredentialRepository(db)

	id, userID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(authenticatorRowColumns).
		AddRow(id.String(), userID.String(), []byte{1, 2, 3}, []byte{4}, "none", nil,
			"internal,hybrid", "platform", true, true, false, false, int64(42), now, now)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+authenticators\s+WHERE\s+credential_id\s*=\s*\$1$`).
		WithArgs([]byte{1, 2, 3}).
		WillReturnRows(rows)

	a, err := repo.FindByCredentialID(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("FindByCredentialID error: %v", err)
	}
	if a.ID != id || a.UserID != userID || a.SignCount != 42 {
		t.Fatalf("unexpected authenticator: %+v", a)
	}
	if len(a.Transports) != 2 || a.Transports[1] != "hybrid" {
		t.Fatalf("unexpected transports: %v", a.Transports)
	}
	if !a.Flags.UserVerified || a.LastUsedAt == nil {
		t.Fatalf("flags or last used not scanned: %+v", a)
	}
}

func TestCredentialRepository_FindNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCredentialRepository(db)

	mock.ExpectQuery(`(?s)^SELECT`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByCredentialID(context.Background(), []byte{9})
	if !errors.Is(err, webauthn.ErrAuthenticatorNotFound) {
		t.Fatalf("want webauthn.ErrAuthenticatorNotFound, got %v", err)
	}
}

func TestCredentialRepository_UpdateCompareAndSwap(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{"counter matched", 1, nil},
		{"counter moved concurrently", 0, webauthn.ErrCounterConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewCredentialRepository(db)

			now := time.Now()
			a := &webauthn.Authenticator{CredentialID: []byte{1}, SignCount: 6, LastUsedAt: &now}
			mock.ExpectExec(`(?s)^UPDATE\s+authenticators\s+SET\s+sign_count\s*=\s*\$1.*WHERE\s+credential_id\s*=\s*\$3\s+AND\s+sign_count\s*=\s*\$4$`).
				WithArgs(int64(6), sqlmock.AnyArg(), []byte{1}, int64(5)).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.Update(context.Background(), a, 5)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCredentialRepository_ListForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewCredentialRepository(db)

	userID := uuid.New()
	now := time.Now().UTC()
	rows := sqlmock.NewRows(authenticatorRowColumns).
		AddRow(uuid.NewString(), userID.String(), []byte{1}, []byte{2}, "none", nil, "", "", true, false, false, false, int64(0), now, nil).
		AddRow(uuid.NewString(), userID.String(), []byte{3}, []byte{4}, "none", nil, "", "", true, false, false, false, int64(3), now, nil)
	mock.ExpectQuery(`(?s)^SELECT.*FROM\s+authenticators\s+WHERE\s+user_id\s*=\s*\$1\s+ORDER\s+BY\s+created_at$`).
		WithArgs(userID).
		WillReturnRows(rows)

	records, err := repo.ListForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("ListForUser error: %v", err)
	}
	if len(records) != 2 || records[1].SignCount != 3 {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].Transports != nil {
		t.Fatalf("empty transports should scan as nil, got %v", records[0].Transports)
	}
}

func TestChallengeRepository_PutAndConsume(t *testing.T) {
	db, mock := newMock(t)
	repo := NewChallengeRepository(db)

	userID := uuid.New()
	expires := time.Now().Add(time.Minute).UTC()
	c := &webauthn.Challenge{
		Ceremony:  webauthn.CeremonyRegistration,
		Value:     "abc",
		UserID:    &userID,
		Session:   gowebauthn.SessionData{Challenge: "abc", UserID: userID[:]},
		ExpiresAt: expires,
	}
	session, err := json.Marshal(c.Session)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+webauthn_challenges`).
		WithArgs("registration:abc", "registration", "abc", userID, string(session), expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rows := sqlmock.NewRows([]string{"ceremony", "challenge", "user_id", "session_data", "expires_at"}).
		AddRow("registration", "abc", userID.String(), session, expires)
	mock.ExpectQuery(`(?s)^DELETE\s+FROM\s+webauthn_challenges\s+WHERE\s+challenge_key\s*=\s*\$1\s+RETURNING`).
		WithArgs("registration:abc").
		WillReturnRows(rows)

	if err := repo.Put(context.Background(), c, time.Minute); err != nil {
		t.Fatalf("Put error: %v", err)
	}

	got, err := repo.GetAndConsume(context.Background(), "registration:abc")
	if err != nil {
		t.Fatalf("GetAndConsume error: %v", err)
	}
	if got.Ceremony != webauthn.CeremonyRegistration || got.Value != "abc" {
		t.Fatalf("unexpected challenge: %+v", got)
	}
	if got.UserID == nil || *got.UserID != userID {
		t.Fatalf("user binding lost: %v", got.UserID)
	}
	if got.Session.Challenge != "abc" {
		t.Fatalf("session not restored: %+v", got.Session)
	}
}

func TestChallengeRepository_ConsumeMissing(t *testing.T) {
	db, mock := newMock(t)
	repo := NewChallengeRepository(db)

	mock.ExpectQuery(`(?s)^DELETE\s+FROM\s+webauthn_challenges`).
		WithArgs("authentication:gone").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAndConsume(context.Background(), "authentication:gone")
	if !errors.Is(err, webauthn.ErrChallengeNotFound) {
		t.Fatalf("want webauthn.ErrChallengeNotFound, got %v", err)
	}
}

func TestChallengeRepository_DeleteExpired(t *testing.T) {
	db, mock := newMock(t)
	repo := NewChallengeRepository(db)

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+webauthn_challenges\s+WHERE\s+expires_at\s*<=\s*\$1$`).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
	if n != 4 {
		t.Fatalf("want 4 pruned, got %d", n)
	}
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), &Config{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
