package account

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/emuse/internal/captcha"
	"github.com/dukerupert/emuse/internal/database"
	"github.com/dukerupert/emuse/internal/model"
	"github.com/dukerupert/emuse/internal/store"
)

const testPassword = "Str0ng!Passw0rd123"

type fakeMailer struct {
	mu         sync.Mutex
	configured bool
	err        error
	sent       []sentEmail
}

type sentEmail struct {
	to, firstName, token string
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) SendVerification(_ context.Context, to, firstName, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEmail{to, firstName, token})
	return m.err
}

func (m *fakeMailer) last(t *testing.T) sentEmail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")
	return m.sent[len(m.sent)-1]
}

type fakeCaptcha struct {
	configured bool
	result     captcha.Result
	err        error
	calls      int
}

func (c *fakeCaptcha) Configured() bool { return c.configured }

func (c *fakeCaptcha) Verify(context.Context, string, string) (captcha.Result, error) {
	c.calls++
	return c.result, c.err
}

// recordingTokens remembers every issued token so tests can reach the ones
// no mail carried.
type recordingTokens struct {
	*store.VerificationTokenStore
	mu     sync.Mutex
	issued []string
}

func (r *recordingTokens) Issue(ctx context.Context, accountID uuid.UUID) (*model.VerificationToken, error) {
	vt, err := r.VerificationTokenStore.Issue(ctx, accountID)
	if err == nil {
		r.mu.Lock()
		r.issued = append(r.issued, vt.Token)
		r.mu.Unlock()
	}
	return vt, err
}

func (r *recordingTokens) last(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.issued, "no token issued")
	return r.issued[len(r.issued)-1]
}

type testEnv struct {
	svc      *Service
	accounts *store.AccountStore
	tokens   *store.VerificationTokenStore
	issued   *recordingTokens
	mailer   *fakeMailer
	captcha  *fakeCaptcha
	logs     *bytes.Buffer
}

func setupService(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		accounts: store.NewAccountStore(db),
		tokens:   store.NewVerificationTokenStore(db),
		mailer:   &fakeMailer{configured: true},
		captcha:  &fakeCaptcha{},
		logs:     &bytes.Buffer{},
	}
	env.issued = &recordingTokens{VerificationTokenStore: env.tokens}
	logger := slog.New(slog.NewTextHandler(env.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	env.svc = NewService(env.accounts, env.issued, env.captcha, env.mailer, logger)
	return env
}

func validSignup() SignupInput {
	return SignupInput{
		Email:       "Alice@Example.com",
		Password:    testPassword,
		FirstName:   "Alice",
		Surname:     "Liddell",
		DisplayName: "alice",
		DateOfBirth: "1990-05-17",
	}
}

func TestSignup(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	a, err := env.svc.Signup(ctx, validSignup())
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.False(t, a.Activated)
	assert.Equal(t, "en_US", a.Locale)
	assert.Equal(t, "UTC", a.Timezone)

	stored, err := env.accounts.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEqual(t, testPassword, stored.Password)

	sent := env.mailer.last(t)
	assert.Equal(t, "alice@example.com", sent.to)
	assert.Equal(t, "Alice", sent.firstName)

	vt, err := env.tokens.Get(ctx, sent.token)
	require.NoError(t, err)
	require.NotNil(t, vt)
	assert.Equal(t, a.ID, vt.AccountID)
}

func TestSignupDuplicateEmail(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	_, err := env.svc.Signup(ctx, validSignup())
	require.NoError(t, err)

	in := validSignup()
	in.Email = "ALICE@example.com "
	_, err = env.svc.Signup(ctx, in)
	assert.ErrorIs(t, err, ErrEmailRegistered)
}

func TestSignupConcurrentDuplicate(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.Signup(ctx, validSignup())
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrEmailRegistered):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)
}

func TestSignupEmailFailureStillCreates(t *testing.T) {
	env := setupService(t)
	env.mailer.err = errors.New("smtp down")

	a, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	assert.NotNil(t, a)
}

func TestSignupMailerNotConfigured(t *testing.T) {
	env := setupService(t)
	env.mailer.configured = false

	_, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	assert.Empty(t, env.mailer.sent)

	token := env.issued.last(t)
	logs := env.logs.String()
	assert.NotContains(t, logs, token)
	assert.Contains(t, logs, "token_prefix="+token[:6]+"...")
}

func TestSignupValidation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*SignupInput)
		field string
	}{
		{"bad email", func(in *SignupInput) { in.Email = "not-an-email" }, "email"},
		{"short password", func(in *SignupInput) { in.Password = "short" }, "password"},
		{"empty first name", func(in *SignupInput) { in.FirstName = "  " }, "first_name"},
		{"long surname", func(in *SignupInput) { in.Surname = strings.Repeat("x", 101) }, "surname"},
		{"missing date of birth", func(in *SignupInput) { in.DateOfBirth = "" }, "date_of_birth"},
		{"malformed date of birth", func(in *SignupInput) { in.DateOfBirth = "17/05/1990" }, "date_of_birth"},
		{"future date of birth", func(in *SignupInput) { in.DateOfBirth = "2999-01-01" }, "date_of_birth"},
		{"bad locale", func(in *SignupInput) { in.Locale = "english" }, "locale"},
		{"bad timezone", func(in *SignupInput) { in.Timezone = "Mars/Olympus" }, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t)
			in := validSignup()
			tt.mut(&in)

			_, err := env.svc.Signup(context.Background(), in)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func signupAndToken(t *testing.T, env *testEnv) string {
	t.Helper()
	_, err := env.svc.Signup(context.Background(), validSignup())
	require.NoError(t, err)
	return env.mailer.last(t).token
}

func TestVerifyEmail(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	token := signupAndToken(t, env)

	already, err := env.svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.False(t, already)

	a, _ := env.accounts.GetByEmail(ctx, "alice@example.com")
	assert.True(t, a.Activated)

	_, err = env.svc.VerifyEmail(ctx, token)
	assert.ErrorIs(t, err, store.ErrInvalidToken)
	assert.Contains(t, env.logs.String(), "reason=used")
	assert.NotContains(t, env.logs.String(), token)
}

func TestVerifyEmailAlreadyVerified(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	token := signupAndToken(t, env)

	a, _ := env.accounts.GetByEmail(ctx, "alice@example.com")
	a.Activated = true
	env.accounts.Save(ctx, a)

	already, err := env.svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, already)
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	env := setupService(t)

	_, err := env.svc.VerifyEmail(context.Background(), "nope")
	assert.ErrorIs(t, err, store.ErrInvalidToken)
	assert.Contains(t, env.logs.String(), "reason=unknown")
}

func activeAccount(t *testing.T, env *testEnv) uuid.UUID {
	t.Helper()
	token := signupAndToken(t, env)
	_, err := env.svc.VerifyEmail(context.Background(), token)
	require.NoError(t, err)
	a, _ := env.accounts.GetByEmail(context.Background(), "alice@example.com")
	return a.ID
}

func TestLogin(t *testing.T) {
	env := setupService(t)
	id := activeAccount(t, env)

	a, err := env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)
	assert.NotNil(t, a.LastLoginAt)
}

func TestLoginRejections(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	activeAccount(t, env)

	_, err := env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	a, _ := env.accounts.GetByEmail(ctx, "alice@example.com")
	a.Locked = true
	env.accounts.Save(ctx, a)
	_, err = env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	a.Locked = false
	a.Memorial = true
	env.accounts.Save(ctx, a)
	_, err = env.svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginPendingAccount(t *testing.T) {
	env := setupService(t)
	signupAndToken(t, env)

	_, err := env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: testPassword})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginCaptcha(t *testing.T) {
	env := setupService(t)
	ctx := context.Background()
	activeAccount(t, env)
	in := LoginInput{Email: "alice@example.com", Password: testPassword, CaptchaToken: "tok"}

	env.captcha.configured = true
	env.captcha.result = captcha.Result{Success: false, ErrorCodes: []string{"invalid-input-response"}}
	_, err := env.svc.Login(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	env.captcha.result = captcha.Result{}
	env.captcha.err = captcha.ErrUnavailable
	_, err = env.svc.Login(ctx, in)
	assert.ErrorIs(t, err, captcha.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	env.captcha.err = nil
	env.captcha.result = captcha.Result{Success: true}
	_, err = env.svc.Login(ctx, in)
	assert.NoError(t, err)
	assert.Equal(t, 3, env.captcha.calls)
}

func TestLoginCaptchaSkippedWhenUnconfigured(t *testing.T) {
	env := setupService(t)
	activeAccount(t, env)

	_, err := env.svc.Login(context.Background(), LoginInput{Email: "alice@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Equal(t, 0, env.captcha.calls)
}

func TestMe(t *testing.T) {
	env := setupService(t)
	id := activeAccount(t, env)

	a, err := env.svc.Me(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, a.ID)

	_, err = env.svc.Me(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
