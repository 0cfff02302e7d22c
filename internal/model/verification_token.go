package model

import (
	"time"

	"github.com/google/uuid"
)

type VerificationToken struct {
	Token     string     `json:"-"`
	AccountID uuid.UUID  `json:"account_id"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
	CreatedAt time.Time  `json:"created_at"`
}

// RejectReason tells a token consumed before its expiry ("used") from one
// burnt after it ("expired").
func (t *VerificationToken) RejectReason() string {
	if t.UsedAt != nil && t.UsedAt.Before(t.ExpiresAt) {
		return "used"
	}
	return "expired"
}
