package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/emuse/internal/password"
)

const (
	DefaultLocale   = "en_US"
	DefaultTimezone = "UTC"
	DateLayout      = "2006-01-02"
)

type Account struct {
	ID            uuid.UUID  `json:"id"`
	SignupAt      time.Time  `json:"signup_at"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	FirstName     string     `json:"first_name"`
	Surname       string     `json:"surname"`
	DisplayName   string     `json:"display_name"`
	Email         string     `json:"email"`
	Password      string     `json:"-"`
	Salt          []byte     `json:"-"`
	DateOfBirth   *time.Time `json:"date_of_birth"`
	Locale        string     `json:"locale"`
	Timezone      string     `json:"timezone"`
	Activated     bool       `json:"activated"`
	Locked        bool       `json:"locked"`
	Memorial      bool       `json:"memorial"`
	Administrator bool       `json:"administrator"`
}

// NewAccount returns a pending account with a fresh id and salt. The salt
// is generated here and never again.
func NewAccount(email string) (*Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate account id: %w", err)
	}
	salt, err := password.NewSalt()
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:       id,
		SignupAt: time.Now().UTC(),
		Email:    NormalizeEmail(email),
		Salt:     salt,
		Locale:   DefaultLocale,
		Timezone: DefaultTimezone,
	}, nil
}

// SetPassword replaces the stored hash, keeping the existing salt.
func (a *Account) SetPassword(plaintext string) {
	a.Password = password.Hash(plaintext, a.Salt)
}

// CanLogin reports whether the account status permits a new session.
func (a *Account) CanLogin() bool {
	return a.Activated && !a.Locked && !a.Memorial
}

// NormalizeEmail is applied before every store and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PublicAccount is the client-facing view of an Account.
type PublicAccount struct {
	ID            uuid.UUID  `json:"id"`
	SignupAt      time.Time  `json:"signup_at"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	FirstName     string     `json:"first_name"`
	Surname       string     `json:"surname"`
	DisplayName   string     `json:"display_name"`
	Email         string     `json:"email"`
	DateOfBirth   *string    `json:"date_of_birth"`
	Locale        string     `json:"locale"`
	Timezone      string     `json:"timezone"`
	Activated     bool       `json:"activated"`
	Locked        bool       `json:"locked"`
	Memorial      bool       `json:"memorial"`
	Administrator bool       `json:"administrator"`
}

func NewPublicAccount(a *Account) PublicAccount {
	p := PublicAccount{
		ID:            a.ID,
		SignupAt:      a.SignupAt,
		LastLoginAt:   a.LastLoginAt,
		FirstName:     a.FirstName,
		Surname:       a.Surname,
		DisplayName:   a.DisplayName,
		Email:         a.Email,
		Locale:        a.Locale,
		Timezone:      a.Timezone,
		Activated:     a.Activated,
		Locked:        a.Locked,
		Memorial:      a.Memorial,
		Administrator: a.Administrator,
	}
	if a.DateOfBirth != nil {
		dob := a.DateOfBirth.Format(DateLayout)
		p.DateOfBirth = &dob
	}
	return p
}
