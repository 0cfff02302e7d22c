// Package session binds opaque session ids to accounts and carries them in
// a signed cookie.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for absent, expired or unverifiable sessions.
	ErrNotFound = errors.New("session not found")

	// ErrUnavailable marks a backend that could not be reached.
	ErrUnavailable = errors.New("session backend unavailable")
)

type Data struct {
	SessionID uuid.UUID `json:"session_id"`
	AccountID uuid.UUID `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (d Data) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// Backend stores session records. Get returns ErrNotFound for unknown ids
// and Delete of an unknown id is not an error.
type Backend interface {
	Put(ctx context.Context, d Data) error
	Get(ctx context.Context, id uuid.UUID) (Data, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
