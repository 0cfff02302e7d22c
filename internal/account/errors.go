package account

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers every definitive login failure: unknown
	// email, wrong password, rejected captcha, inactive account.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrEmailRegistered = errors.New("email already registered")
	ErrAccountNotFound = errors.New("account not found")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
