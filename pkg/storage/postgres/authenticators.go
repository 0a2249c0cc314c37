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
	"errors"
	"fmt"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

const authenticatorColumns = `id, user_id, credential_id, public_key, attestation_type, aaguid,
		transports, attachment, user_present, user_verified, backup_eligible, backup_state,
		sign_count, created_at, last_used_at`

// CredentialRepository implements webauthn.CredentialStore.
type CredentialRepository struct {
	db DBTX
}

var _ webauthn.CredentialStore = (*CredentialRepository)(nil)

func NewCredentialRepository(db DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) FindByCredentialID(ctx context.Context, credentialID []byte) (*webauthn.Authenticator, error) {
	query := `SELECT ` + authenticatorColumns + ` FROM authenticators WHERE credential_id = $1`

	a, err := scanAuthenticator(r.db.QueryRowContext(ctx, query, credentialID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrAuthenticatorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return a, nil
}

func (r *CredentialRepository) Save(ctx context.Context, a *webauthn.Authenticator) error {
	query :=
		`INSERT INTO authenticators (` + authenticatorColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.ExecContext(ctx, query,
		a.ID, a.UserID, a.CredentialID, a.PublicKey, a.AttestationType, a.AAGUID,
		joinTransports(a.Transports), string(a.Attachment),
		a.Flags.UserPresent, a.Flags.UserVerified, a.Flags.BackupEligible, a.Flags.BackupState,
		int64(a.SignCount), a.CreatedAt, nullTime(a.LastUsedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return webauthn.ErrCredentialExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Update is a compare-and-swap on sign_count. Zero affected rows means a
// concurrent assertion already moved the counter.
func (r *CredentialRepository) Update(ctx context.Context, a *webauthn.Authenticator, previousSignCount uint32) error {
	query :=
		`UPDATE authenticators SET sign_count = $1, last_used_at = $2
		 WHERE credential_id = $3 AND sign_count = $4`

	res, err := r.db.ExecContext(ctx, query,
		int64(a.SignCount), nullTime(a.LastUsedAt), a.CredentialID, int64(previousSignCount))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return webauthn.ErrCounterConflict
	}
	return nil
}

func (r *CredentialRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*webauthn.Authenticator, error) {
	query := `SELECT ` + authenticatorColumns + ` FROM authenticators WHERE user_id = $1 ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	records := []*webauthn.Authenticator{}
	for rows.Next() {
		a, err := scanAuthenticator(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAuthenticator(s scanner) (*webauthn.Authenticator, error) {
	var (
		a          webauthn.Authenticator
		transports string
		attachment string
		signCount  int64
		lastUsed   sql.NullTime
	)
	err := s.Scan(&a.ID, &a.UserID, &a.CredentialID, &a.PublicKey, &a.AttestationType, &a.AAGUID,
		&transports, &attachment,
		&a.Flags.UserPresent, &a.Flags.UserVerified, &a.Flags.BackupEligible, &a.Flags.BackupState,
		&signCount, &a.CreatedAt, &lastUsed)
	if err != nil {
		return nil, err
	}
	a.Transports = splitTransports(transports)
	a.Attachment = protocol.AuthenticatorAttachment(attachment)
	a.SignCount = uint32(signCount)
	a.LastUsedAt = timePtr(lastUsed)
	return &a, nil
}

func joinTransports(ts []protocol.AuthenticatorTransport) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitTransports(s string) []protocol.AuthenticatorTransport {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ts := make([]protocol.AuthenticatorTransport, len(parts))
	for i, p := range parts {
		ts[i] = protocol.AuthenticatorTransport(p)
	}
	return ts
}
