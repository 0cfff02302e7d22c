package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dukerupert/emuse/internal/captcha"
	"github.com/dukerupert/emuse/internal/session"
	"github.com/dukerupert/emuse/internal/store"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// isTransient reports failures worth a retry: the database, the captcha
// service or the session backend could not be reached.
func isTransient(err error) bool {
	return errors.Is(err, store.ErrUnavailable) ||
		errors.Is(err, captcha.ErrUnavailable) ||
		errors.Is(err, session.ErrUnavailable)
}

func writeServerError(w http.ResponseWriter, err error) {
	if isTransient(err) {
		writeDetail(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
		return
	}
	writeDetail(w, http.StatusInternalServerError, "Internal server error")
}
