package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/emuse/internal/database"
	"github.com/dukerupert/emuse/internal/model"
)

const (
	VerificationTokenTTL = 24 * time.Hour
	tokenBytes           = 32
)

type VerificationTokenStore struct {
	db *database.DB
}

func NewVerificationTokenStore(db *database.DB) *VerificationTokenStore {
	return &VerificationTokenStore{db: db}
}

func scanVerificationToken(scanner interface{ Scan(...any) error }) (*model.VerificationToken, error) {
	var vt model.VerificationToken
	var usedAt sql.NullTime

	err := scanner.Scan(&vt.Token, &vt.AccountID, &vt.ExpiresAt, &usedAt, &vt.CreatedAt)
	if err != nil {
		return nil, err
	}
	if usedAt.Valid {
		vt.UsedAt = &usedAt.Time
	}
	return &vt, nil
}

const verificationTokenCols = `token, account_id, expires_at, used_at, created_at`

func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates an unused token for the account that expires in 24 hours.
func (s *VerificationTokenStore) Issue(ctx context.Context, accountID uuid.UUID) (*model.VerificationToken, error) {
	token, err := generateToken()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	vt := &model.VerificationToken{
		Token:     token,
		AccountID: accountID,
		ExpiresAt: now.Add(VerificationTokenTTL),
		CreatedAt: now,
	}

	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO email_verification_tokens (token, account_id, expires_at, created_at) VALUES (?, ?, ?, ?)`),
		vt.Token, accountID.String(), vt.ExpiresAt, vt.CreatedAt,
	)
	if err != nil {
		return nil, dbError("insert verification token", err)
	}
	return vt, nil
}

// Get returns the token row regardless of state, or nil if unknown.
func (s *VerificationTokenStore) Get(ctx context.Context, token string) (*model.VerificationToken, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		s.db.Rebind(`SELECT `+verificationTokenCols+` FROM email_verification_tokens WHERE token = ?`),
		token,
	)
	vt, err := scanVerificationToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get verification token", err)
	}
	return vt, nil
}

// Consume marks the token used and returns its account. The check and the
// mark are one statement, so of any number of concurrent callers exactly
// one succeeds. An expired token is burnt and still rejected.
func (s *VerificationTokenStore) Consume(ctx context.Context, token string) (uuid.UUID, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	var (
		accountID uuid.UUID
		valid     bool
	)
	err := s.db.QueryRowContext(ctx,
		s.db.Rebind(`UPDATE email_verification_tokens SET used_at = ? WHERE token = ? AND used_at IS NULL RETURNING account_id, expires_at > ?`),
		now, token, now,
	).Scan(&accountID, &valid)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrInvalidToken
	}
	if err != nil {
		return uuid.Nil, dbError("consume verification token", err)
	}
	if !valid {
		return uuid.Nil, ErrInvalidToken
	}
	return accountID, nil
}

func (s *VerificationTokenStore) DeleteExpired(ctx context.Context) (int64, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM email_verification_tokens WHERE expires_at <= ?`),
		time.Now().UTC(),
	)
	if err != nil {
		return 0, dbError("delete expired verification tokens", err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return 0, dbError("rows affected", err)
	}
	return count, nil
}
