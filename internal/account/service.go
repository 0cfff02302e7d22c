// Package account implements the signup, email verification and login
// flows on top of the stores, the captcha client and the mailer.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukerupert/emuse/internal/captcha"
	"github.com/dukerupert/emuse/internal/model"
	"github.com/dukerupert/emuse/internal/store"
)

type Accounts interface {
	Authenticate(ctx context.Context, email, password string) (*model.Account, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	Save(ctx context.Context, a *model.Account) (bool, error)
}

type Tokens interface {
	Issue(ctx context.Context, accountID uuid.UUID) (*model.VerificationToken, error)
	Consume(ctx context.Context, token string) (uuid.UUID, error)
	Get(ctx context.Context, token string) (*model.VerificationToken, error)
}

type Captcha interface {
	Configured() bool
	Verify(ctx context.Context, token, remoteIP string) (captcha.Result, error)
}

type Mailer interface {
	Configured() bool
	SendVerification(ctx context.Context, to, firstName, token string) error
}

type Service struct {
	accounts Accounts
	tokens   Tokens
	captcha  Captcha
	mailer   Mailer
	validate *validator.Validate
	logger   *slog.Logger
}

func NewService(accounts Accounts, tokens Tokens, verifier Captcha, mailer Mailer, logger *slog.Logger) *Service {
	return &Service{
		accounts: accounts,
		tokens:   tokens,
		captcha:  verifier,
		mailer:   mailer,
		validate: newValidator(),
		logger:   logger,
	}
}

// Signup creates a pending account and sends its verification email.
// Delivery failures are logged; the account is created regardless.
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.Account, error) {
	in.normalize()
	dob, err := s.validateSignup(in)
	if err != nil {
		return nil, err
	}

	existing, err := s.accounts.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailRegistered
	}

	a, err := model.NewAccount(in.Email)
	if err != nil {
		return nil, err
	}
	a.FirstName = in.FirstName
	a.Surname = in.Surname
	a.DisplayName = in.DisplayName
	a.DateOfBirth = &dob
	a.Locale = in.Locale
	a.Timezone = in.Timezone
	a.SetPassword(in.Password)

	if _, err := s.accounts.Save(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrEmailRegistered
		}
		return nil, fmt.Errorf("save account: %w", err)
	}
	s.logger.Info("account created", "account_id", a.ID)

	vt, err := s.tokens.Issue(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("issue verification token: %w", err)
	}
	s.sendVerification(ctx, a, vt.Token)

	return a, nil
}

func (s *Service) sendVerification(ctx context.Context, a *model.Account, token string) {
	if s.mailer == nil || !s.mailer.Configured() {
		s.logger.Warn("email not configured, verification email not sent",
			"account_id", a.ID,
			"token_prefix", tokenPrefix(token),
		)
		return
	}
	if err := s.mailer.SendVerification(ctx, a.Email, a.FirstName, token); err != nil {
		s.logger.Error("send verification email", "account_id", a.ID, "error", err)
	}
}

// VerifyEmail consumes token and activates its account. alreadyVerified
// reports an account that was active before this call.
func (s *Service) VerifyEmail(ctx context.Context, token string) (alreadyVerified bool, err error) {
	accountID, err := s.tokens.Consume(ctx, token)
	if errors.Is(err, store.ErrInvalidToken) {
		s.logRejectedToken(ctx, token)
		return false, err
	}
	if err != nil {
		return false, err
	}

	a, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("get account: %w", err)
	}
	if a == nil {
		return false, ErrAccountNotFound
	}
	if a.Activated {
		return true, nil
	}

	a.Activated = true
	if _, err := s.accounts.Save(ctx, a); err != nil {
		return false, fmt.Errorf("activate account: %w", err)
	}
	s.logger.Info("email verified", "account_id", a.ID)
	return false, nil
}

// logRejectedToken records why a token was refused.
func (s *Service) logRejectedToken(ctx context.Context, token string) {
	vt, err := s.tokens.Get(ctx, token)
	if err != nil {
		s.logger.Warn("verification token rejected", "token_prefix", tokenPrefix(token), "error", err)
		return
	}
	if vt == nil {
		s.logger.Warn("verification token rejected", "token_prefix", tokenPrefix(token), "reason", "unknown")
		return
	}
	s.logger.Warn("verification token rejected",
		"account_id", vt.AccountID,
		"token_prefix", tokenPrefix(token),
		"reason", vt.RejectReason(),
	)
}

// tokenPrefix is enough of a token to correlate log lines without making
// it usable.
func tokenPrefix(token string) string {
	const n = 6
	if len(token) <= n {
		return token
	}
	return token[:n] + "..."
}

type LoginInput struct {
	Email        string
	Password     string
	CaptchaToken string
	RemoteIP     string
}

// Login returns the account for valid credentials on an active account.
// Every definitive rejection is ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, in LoginInput) (*model.Account, error) {
	if s.captcha != nil && s.captcha.Configured() {
		res, err := s.captcha.Verify(ctx, in.CaptchaToken, in.RemoteIP)
		if err != nil {
			return nil, fmt.Errorf("verify captcha: %w", err)
		}
		if !res.Success {
			s.logger.Warn("captcha rejected", "error_codes", res.ErrorCodes)
			return nil, ErrInvalidCredentials
		}
	}

	a, err := s.accounts.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	if a == nil {
		s.logger.Info("login failed")
		return nil, ErrInvalidCredentials
	}
	if !a.CanLogin() {
		s.logger.Info("login refused",
			"account_id", a.ID,
			"activated", a.Activated,
			"locked", a.Locked,
			"memorial", a.Memorial,
		)
		return nil, ErrInvalidCredentials
	}
	return a, nil
}

// Me returns the account bound to a session.
func (s *Service) Me(ctx context.Context, accountID uuid.UUID) (*model.Account, error) {
	a, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a, nil
}
