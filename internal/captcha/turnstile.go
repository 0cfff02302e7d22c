// Package captcha verifies Cloudflare Turnstile tokens.
package captcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"
	DefaultTimeout   = 10 * time.Second
)

// ErrUnavailable marks a verification that could not be completed. It says
// nothing about the token itself.
var ErrUnavailable = errors.New("captcha verification unavailable")

type Config struct {
	SiteKey   string
	SecretKey string
	VerifyURL string
	Timeout   time.Duration
}

type Client struct {
	siteKey    string
	secretKey  string
	verifyURL  string
	timeout    time.Duration
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		siteKey:    cfg.SiteKey,
		secretKey:  cfg.SecretKey,
		verifyURL:  cfg.VerifyURL,
		timeout:    cfg.Timeout,
		httpClient: http.DefaultClient,
	}
	if c.verifyURL == "" {
		c.verifyURL = DefaultVerifyURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the secret key is set.
func (c *Client) Configured() bool {
	return c.secretKey != ""
}

func (c *Client) SiteKey() string {
	return c.siteKey
}

// Result is the siteverify response body.
type Result struct {
	Success     bool     `json:"success"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ErrorCodes  []string `json:"error-codes"`
	Action      string   `json:"action,omitempty"`
	CData       string   `json:"cdata,omitempty"`
}

// Verify checks token with Turnstile. A nil error with Success false is a
// definitive rejection; errors wrap ErrUnavailable.
func (c *Client) Verify(ctx context.Context, token, remoteIP string) (Result, error) {
	if !c.Configured() {
		return Result{}, errors.New("captcha client not configured: missing secret key")
	}
	if token == "" {
		return Result{ErrorCodes: []string{"missing-input-response"}}, nil
	}

	form := url.Values{}
	form.Set("secret", c.secretKey)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("%w: siteverify status %d", ErrUnavailable, resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %w", ErrUnavailable, err)
	}
	return result, nil
}
