package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"

	"github.com/dukerupert/emuse/internal/captcha"
	"github.com/dukerupert/emuse/internal/config"
	"github.com/dukerupert/emuse/internal/database"
	"github.com/dukerupert/emuse/internal/email"
	"github.com/dukerupert/emuse/internal/logging"
	"github.com/dukerupert/emuse/internal/server"
	"github.com/dukerupert/emuse/internal/session"
)

func main() {
	if err := run(); err != nil {
		slog.Error("emuse exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(database.Config{
		Driver:       cfg.DatabaseDriver,
		URL:          cfg.DatabaseURL,
		MinConns:     cfg.DBMinConns,
		MaxConns:     cfg.DBMaxConns,
		QueryTimeout: cfg.AcquireTimeout,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	backend, closeBackend, err := sessionBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	sessions, err := session.NewManager(backend, session.Config{
		CookieName: cfg.CookieName,
		Secret:     cfg.CookieSecret,
		TTL:        cfg.SessionTTL,
		Secure:     cfg.CookieSecure,
	})
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	verifier := captcha.NewClient(captcha.Config{
		SiteKey:   cfg.TurnstileSiteKey,
		SecretKey: cfg.TurnstileSecretKey,
		VerifyURL: cfg.TurnstileVerifyURL,
		Timeout:   cfg.TurnstileTimeout,
	})
	if !verifier.Configured() {
		logger.Warn("turnstile not configured, captcha checks disabled")
	}

	emailClient := email.NewClient(cfg.PostmarkToken, cfg.From(), cfg.BaseURL)

	srv := server.New(db, sessions, verifier, emailClient, server.Config{
		SiteKey:        cfg.TurnstileSiteKey,
		LoginRateLimit: cfg.LoginRateLimit,
		RateWindow:     cfg.RateWindow,
		TrustProxy:     cfg.TrustProxy,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.VerificationTokenStore().DeleteExpired(ctx); err != nil {
					logger.Error("cleanup expired verification tokens", "error", err)
				} else if n > 0 {
					logger.Info("cleaned up expired verification tokens", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("emuse starting", "addr", httpServer.Addr, "env", cfg.Environment, "db", string(db.Dialect()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}

	logger.Info("shutting down")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func sessionBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Backend, func(), error) {
	switch cfg.SessionBackend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("session backend", "type", "redis")
		return session.NewRedisBackend(client, session.DefaultRedisPrefix), func() { client.Close() }, nil
	default:
		mem := session.NewMemoryBackend()
		go mem.Run(ctx, cfg.SweepInterval)
		logger.Info("session backend", "type", "memory", "sweep_interval", cfg.SweepInterval)
		return mem, func() { mem.Close() }, nil
	}
}
