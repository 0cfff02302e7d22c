package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	from        string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient builds a Postmark client. from is the sender as it appears in
// the From header, e.g. "eMuse <noreply@emuse.org>".
func NewClient(serverToken, from, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		from:        from,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

// VerificationLink is the page the verification email points at.
func (c *Client) VerificationLink(token string) string {
	return fmt.Sprintf("%s/verify-email/%s", c.baseURL, token)
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendVerification sends the email verification link to a new account.
func (c *Client) SendVerification(ctx context.Context, toEmail, firstName, token string) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	link := c.VerificationLink(token)
	textBody := fmt.Sprintf(`Hello %s,

Thank you for signing up for eMuse! Please verify your email address by clicking the link below:

%s

This link will expire in 24 hours.

If you did not create an account, please ignore this email.

Best regards,
The eMuse Team
`, firstName, link)
	htmlBody := fmt.Sprintf(
		`<h2>Welcome to eMuse!</h2><p>Hello %s,</p><p>Thank you for signing up for eMuse! Please verify your email address by clicking the link below:</p><p><a href="%s">Verify Email Address</a></p><p>This link will expire in 24 hours.</p><p>If you did not create an account, please ignore this email.</p><p>Best regards,<br>The eMuse Team</p>`,
		html.EscapeString(firstName), html.EscapeString(link),
	)

	return c.send(ctx, postmarkEmail{
		From:     c.from,
		To:       toEmail,
		Subject:  "Verify your eMuse account",
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
