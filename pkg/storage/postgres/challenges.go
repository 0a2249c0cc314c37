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
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-passkey-auth/pkg/webauthn"
)

// ChallengeRepository implements webauthn.ChallengeStore and
// webauthn.ChallengePruner. Rows carry their own expiry, so the ttl passed
// to Put is not stored separately.
type ChallengeRepository struct {
	db DBTX
}

var (
	_ webauthn.ChallengeStore  = (*ChallengeRepository)(nil)
	_ webauthn.ChallengePruner = (*ChallengeRepository)(nil)
)

func NewChallengeRepository(db DBTX) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

func (r *ChallengeRepository) Put(ctx context.Context, c *webauthn.Challenge, _ time.Duration) error {
	session, err := json.Marshal(c.Session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	query :=
		`INSERT INTO webauthn_challenges (challenge_key, ceremony, challenge, user_id, session_data, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`

	var userID uuid.NullUUID
	if c.UserID != nil {
		userID = uuid.NullUUID{UUID: *c.UserID, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, query,
		c.Key(), string(c.Ceremony), c.Value, userID, string(session), c.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetAndConsume deletes and returns the row in one statement, so two
// concurrent verifications cannot both redeem the same challenge.
func (r *ChallengeRepository) GetAndConsume(ctx context.Context, key string) (*webauthn.Challenge, error) {
	query :=
		`DELETE FROM webauthn_challenges WHERE challenge_key = $1
		 RETURNING ceremony, challenge, user_id, session_data, expires_at`

	var (
		c        webauthn.Challenge
		ceremony string
		userID   uuid.NullUUID
		session  []byte
	)
	err := r.db.QueryRowContext(ctx, query, key).Scan(&ceremony, &c.Value, &userID, &session, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(session, &c.Session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	c.Ceremony = webauthn.Ceremony(ceremony)
	if userID.Valid {
		id := userID.UUID
		c.UserID = &id
	}
	return &c, nil
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM webauthn_challenges WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
