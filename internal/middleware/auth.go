package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/emuse/internal/auth"
	"github.com/dukerupert/emuse/internal/session"
)

// RequireSession resolves the signed session cookie and populates
// AuthContext. Requests without a live session get 403.
func RequireSession(sessions *session.Manager, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.FromRequest(r)
			if errors.Is(err, session.ErrNotFound) {
				writeDetail(w, http.StatusForbidden, "Invalid Session")
				return
			}
			if err != nil {
				logger.Error("resolve session", "error", err)
				writeDetail(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
				return
			}

			ac := auth.AuthContext{
				AccountID: sess.AccountID,
				SessionID: sess.SessionID,
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
