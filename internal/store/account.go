package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/emuse/internal/database"
	"github.com/dukerupert/emuse/internal/model"
	"github.com/dukerupert/emuse/internal/password"
)

type AccountStore struct {
	db *database.DB
}

func NewAccountStore(db *database.DB) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(scanner interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	var lastLoginAt, dateOfBirth sql.NullTime

	err := scanner.Scan(
		&a.ID, &a.SignupAt, &lastLoginAt, &a.FirstName, &a.Surname, &a.DisplayName,
		&a.Email, &a.Password, &a.Salt, &dateOfBirth, &a.Locale, &a.Timezone,
		&a.Activated, &a.Locked, &a.Memorial, &a.Administrator,
	)
	if err != nil {
		return nil, err
	}

	if lastLoginAt.Valid {
		a.LastLoginAt = &lastLoginAt.Time
	}
	if dateOfBirth.Valid {
		a.DateOfBirth = &dateOfBirth.Time
	}
	return &a, nil
}

const accountCols = `id, signup_at, last_login_at, first_name, surname, display_name, email, password, salt, date_of_birth, locale, timezone, activated, locked, memorial, administrator`

const upsertAccount = `INSERT INTO accounts (` + accountCols + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
	last_login_at = excluded.last_login_at,
	first_name = excluded.first_name,
	surname = excluded.surname,
	display_name = excluded.display_name,
	email = excluded.email,
	password = excluded.password,
	date_of_birth = excluded.date_of_birth,
	locale = excluded.locale,
	timezone = excluded.timezone,
	activated = excluded.activated,
	locked = excluded.locked,
	memorial = excluded.memorial,
	administrator = excluded.administrator`

// Authenticate returns the account whose email and password match, or nil.
// A miss on either check looks the same to the caller. Account status is
// left to the caller.
func (s *AccountStore) Authenticate(ctx context.Context, email, plaintext string) (*model.Account, error) {
	var (
		id     uuid.UUID
		salt   []byte
		hashed string
	)
	err := func() error {
		ctx, cancel := s.db.WithTimeout(ctx)
		defer cancel()
		return s.db.QueryRowContext(ctx,
			s.db.Rebind(`SELECT id, salt, password FROM accounts WHERE email = ?`),
			model.NormalizeEmail(email),
		).Scan(&id, &salt, &hashed)
	}()
	if errors.Is(err, sql.ErrNoRows) {
		// Unknown email: derive a hash anyway so this path costs the same
		// as a wrong password.
		dummy, saltErr := password.NewSalt()
		if saltErr != nil {
			return nil, saltErr
		}
		_ = password.Hash(plaintext, dummy)
		return nil, nil
	}
	if err != nil {
		return nil, dbError("authenticate", err)
	}

	if !password.Verify(plaintext, salt, hashed) {
		return nil, nil
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, nil
	}

	now := time.Now().UTC()
	a.LastLoginAt = &now
	if _, err := s.Save(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AccountStore) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+accountCols+` FROM accounts WHERE id = ?`), id.String())
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get account", err)
	}
	return a, nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, s.db.Rebind(`SELECT `+accountCols+` FROM accounts WHERE email = ?`), model.NormalizeEmail(email))
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("get account by email", err)
	}
	return a, nil
}

// Save inserts the account or updates every mutable column of the existing
// row. It reports whether a row was written. The salt and signup time are
// fixed at insert.
func (s *AccountStore) Save(ctx context.Context, a *model.Account) (bool, error) {
	ctx, cancel := s.db.WithTimeout(ctx)
	defer cancel()

	a.Email = model.NormalizeEmail(a.Email)
	result, err := s.db.ExecContext(ctx, s.db.Rebind(upsertAccount),
		a.ID.String(), a.SignupAt, nullTime(a.LastLoginAt), a.FirstName, a.Surname, a.DisplayName,
		a.Email, a.Password, a.Salt, nullTime(a.DateOfBirth), a.Locale, a.Timezone,
		a.Activated, a.Locked, a.Memorial, a.Administrator,
	)
	if database.IsUniqueViolation(err) {
		return false, ErrDuplicateEmail
	}
	if err != nil {
		return false, dbError("save account", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, dbError("rows affected", err)
	}
	return n > 0, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
