package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/emuse/internal/account"
	"github.com/dukerupert/emuse/internal/auth"
	"github.com/dukerupert/emuse/internal/model"
	"github.com/dukerupert/emuse/internal/session"
	"github.com/dukerupert/emuse/internal/store"
)

type AccountHandler struct {
	accounts *account.Service
	sessions *session.Manager
	siteKey  string
	clientIP func(*http.Request) string
	logger   *slog.Logger
}

func NewAccountHandler(svc *account.Service, sessions *session.Manager, siteKey string, clientIP func(*http.Request) string, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: svc,
		sessions: sessions,
		siteKey:  siteKey,
		clientIP: clientIP,
		logger:   logger,
	}
}

type loginRequest struct {
	Email          string `json:"email"`
	Password       string `json:"password"`
	TurnstileToken string `json:"turnstile_token"`
}

func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	a, err := h.accounts.Login(r.Context(), account.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.TurnstileToken,
		RemoteIP:     h.clientIP(r),
	})
	if errors.Is(err, account.ErrInvalidCredentials) {
		writeDetail(w, http.StatusForbidden, "Forbidden")
		return
	}
	if err != nil {
		h.logger.Error("login", "error", err)
		writeServerError(w, err)
		return
	}

	_, cookie, err := h.sessions.Create(r.Context(), a.ID)
	if err != nil {
		h.logger.Error("create session", "account_id", a.ID, "error", err)
		writeServerError(w, err)
		return
	}
	http.SetCookie(w, cookie)
	h.logger.Info("login", "account_id", a.ID)

	writeJSON(w, http.StatusOK, model.NewPublicAccount(a))
}

// Logout ends the session and sends the browser home.
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if !h.endSession(w, r) {
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// APILogout ends the session for script clients.
func (h *AccountHandler) APILogout(w http.ResponseWriter, r *http.Request) {
	if !h.endSession(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) endSession(w http.ResponseWriter, r *http.Request) bool {
	accountID := auth.AccountID(r.Context())
	if err := h.sessions.Delete(r.Context(), auth.SessionID(r.Context())); err != nil {
		h.logger.Error("delete session", "account_id", accountID, "error", err)
		writeServerError(w, err)
		return false
	}
	http.SetCookie(w, h.sessions.ClearCookie())
	h.logger.Info("logout", "account_id", accountID)
	return true
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID := auth.AccountID(r.Context())

	a, err := h.accounts.Me(r.Context(), accountID)
	if errors.Is(err, account.ErrAccountNotFound) {
		writeDetail(w, http.StatusUnauthorized, "Account not found")
		return
	}
	if err != nil {
		h.logger.Error("get account", "account_id", accountID, "error", err)
		writeServerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, model.NewPublicAccount(a))
}

type signupResponse struct {
	Message string `json:"message"`
	Email   string `json:"email"`
}

func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req account.SignupInput
	if err := decodeJSON(w, r, &req); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	a, err := h.accounts.Signup(r.Context(), req)
	var verr *account.ValidationError
	switch {
	case errors.As(err, &verr):
		writeDetail(w, http.StatusBadRequest, verr.Error())
		return
	case errors.Is(err, account.ErrEmailRegistered):
		writeDetail(w, http.StatusBadRequest, "Email already registered")
		return
	case err != nil:
		h.logger.Error("signup", "error", err)
		writeServerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, signupResponse{
		Message: "Account created successfully. Please check your email to verify your account.",
		Email:   a.Email,
	})
}

type verifyEmailResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")

	already, err := h.accounts.VerifyEmail(r.Context(), token)
	switch {
	case errors.Is(err, store.ErrInvalidToken):
		writeDetail(w, http.StatusBadRequest, "Invalid or expired verification token")
		return
	case errors.Is(err, account.ErrAccountNotFound):
		writeDetail(w, http.StatusNotFound, "Account not found")
		return
	case err != nil:
		h.logger.Error("verify email", "error", err)
		writeServerError(w, err)
		return
	}

	message := "Email verified successfully! You can now log in."
	if already {
		message = "Email already verified"
	}
	writeJSON(w, http.StatusOK, verifyEmailResponse{Success: true, Message: message})
}

func (h *AccountHandler) TurnstileConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"site_key": h.siteKey})
}
