package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{}

// AuthContext identifies the session a request was authenticated with.
type AuthContext struct {
	AccountID uuid.UUID
	SessionID uuid.UUID
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func AccountID(ctx context.Context) uuid.UUID {
	ac, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return ac.AccountID
}

func SessionID(ctx context.Context) uuid.UUID {
	ac, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return ac.SessionID
}
