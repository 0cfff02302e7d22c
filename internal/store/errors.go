package store

import (
	"errors"
	"fmt"

	"github.com/dukerupert/emuse/internal/database"
)

var (
	// ErrDuplicateEmail is returned by Save when another account already
	// owns the email.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidToken covers unknown, used and expired verification tokens.
	ErrInvalidToken = errors.New("invalid or expired verification token")

	// ErrUnavailable marks failures of the pool or the database connection.
	ErrUnavailable = errors.New("database unavailable")
)

func dbError(op string, err error) error {
	if database.IsTransient(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
