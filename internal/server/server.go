package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/emuse/internal/account"
	"github.com/dukerupert/emuse/internal/database"
	"github.com/dukerupert/emuse/internal/handler"
	"github.com/dukerupert/emuse/internal/middleware"
	"github.com/dukerupert/emuse/internal/session"
	"github.com/dukerupert/emuse/internal/store"
)

type Config struct {
	SiteKey        string
	LoginRateLimit int
	RateWindow     time.Duration
	// TrustProxy honors CF-Connecting-IP and X-Forwarded-For when
	// resolving the client address.
	TrustProxy bool
}

type Server struct {
	db          *database.DB
	accountH    *handler.AccountHandler
	sessions    *session.Manager
	tokenStore  *store.VerificationTokenStore
	rateLimiter *middleware.RateLimiter
	clientIP    func(*http.Request) string
	cfg         Config
	logger      *slog.Logger
}

func New(db *database.DB, sessions *session.Manager, verifier account.Captcha, mailer account.Mailer, cfg Config, logger *slog.Logger) *Server {
	if cfg.LoginRateLimit <= 0 {
		cfg.LoginRateLimit = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}

	accountStore := store.NewAccountStore(db)
	tokenStore := store.NewVerificationTokenStore(db)

	clientIP := middleware.ClientIP(cfg.TrustProxy)
	svc := account.NewService(accountStore, tokenStore, verifier, mailer, logger.With("component", "account"))

	return &Server{
		db:          db,
		accountH:    handler.NewAccountHandler(svc, sessions, cfg.SiteKey, clientIP, logger.With("component", "handler")),
		sessions:    sessions,
		tokenStore:  tokenStore,
		rateLimiter: middleware.NewRateLimiter(),
		clientIP:    clientIP,
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *Server) VerificationTokenStore() *store.VerificationTokenStore {
	return s.tokenStore
}

func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /api/login", s.rateLimitedHandler("login", s.accountH.Login))
	mux.HandleFunc("POST /api/signup", s.rateLimitedHandler("signup", s.accountH.Signup))
	mux.HandleFunc("GET /api/verify-email/{token}", s.accountH.VerifyEmail)
	mux.HandleFunc("GET /api/turnstile/config", s.accountH.TurnstileConfig)

	requireSession := middleware.RequireSession(s.sessions, s.logger.With("component", "session"))
	mux.Handle("GET /api/me", requireSession(http.HandlerFunc(s.accountH.Me)))
	mux.Handle("GET /api/logout", requireSession(http.HandlerFunc(s.accountH.APILogout)))
	mux.Handle("GET /logout", requireSession(http.HandlerFunc(s.accountH.Logout)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(ctx); err != nil {
		s.logger.Warn("health check: database unreachable", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// rateLimitedHandler limits h per client IP, in a bucket separate from other
// routes.
func (s *Server) rateLimitedHandler(bucket string, h http.HandlerFunc) http.HandlerFunc {
	key := func(r *http.Request) string { return bucket + ":" + s.clientIP(r) }
	rl := middleware.RateLimit(s.rateLimiter, key, s.cfg.LoginRateLimit, s.cfg.RateWindow)
	return rl(h).ServeHTTP
}
