package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
)

const (
	DefaultCookieName = "cookie"
	DefaultTTL        = 24 * time.Hour
)

type Config struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
}

type Manager struct {
	backend    Backend
	codec      *securecookie.SecureCookie
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

func NewManager(backend Backend, cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, errors.New("session secret is required")
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	codec := securecookie.New([]byte(cfg.Secret), nil)
	codec.MaxAge(int(cfg.TTL / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})

	return &Manager{
		backend:    backend,
		codec:      codec,
		cookieName: cfg.CookieName,
		ttl:        cfg.TTL,
		secure:     cfg.Secure,
		now:        time.Now,
	}, nil
}

func (m *Manager) CookieName() string {
	return m.cookieName
}

// Create stores a new session for the account and returns the cookie that
// carries it.
func (m *Manager) Create(ctx context.Context, accountID uuid.UUID) (Data, *http.Cookie, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Data{}, nil, fmt.Errorf("generate session id: %w", err)
	}
	now := m.now().UTC()
	d := Data{
		SessionID: id,
		AccountID: accountID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.backend.Put(ctx, d); err != nil {
		return Data{}, nil, fmt.Errorf("store session: %w", err)
	}

	value, err := m.codec.Encode(m.cookieName, id.String())
	if err != nil {
		return Data{}, nil, fmt.Errorf("encode session cookie: %w", err)
	}
	return d, m.cookie(value, int(m.ttl/time.Second)), nil
}

// Lookup returns the live session for id. Expired records are removed.
func (m *Manager) Lookup(ctx context.Context, id uuid.UUID) (Data, error) {
	d, err := m.backend.Get(ctx, id)
	if err != nil {
		return Data{}, err
	}
	if d.Expired(m.now()) {
		if err := m.backend.Delete(ctx, id); err != nil {
			return Data{}, err
		}
		return Data{}, ErrNotFound
	}
	return d, nil
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID) error {
	if err := m.backend.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// FromRequest resolves the session named by the request cookie. Missing,
// unsigned and tampered cookies all yield ErrNotFound.
func (m *Manager) FromRequest(r *http.Request) (Data, error) {
	c, err := r.Cookie(m.cookieName)
	if err != nil {
		return Data{}, ErrNotFound
	}
	var raw string
	if err := m.codec.Decode(m.cookieName, c.Value, &raw); err != nil {
		return Data{}, ErrNotFound
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Data{}, ErrNotFound
	}
	return m.Lookup(r.Context(), id)
}

// ClearCookie returns a cookie that removes the session cookie.
func (m *Manager) ClearCookie() *http.Cookie {
	return m.cookie("", -1)
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
