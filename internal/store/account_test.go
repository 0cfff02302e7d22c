package store

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/emuse/internal/model"
)

const testPassword = "Str0ng!Passw0rd123"

func setupAccountTestStore(t *testing.T) *AccountStore {
	t.Helper()
	return NewAccountStore(setupTestDB(t))
}

func TestAccountSaveAndGet(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	a := newTestAccount(t, "Alice@Example.com", testPassword)
	written, err := s.Save(ctx, a)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !written {
		t.Error("expected row written")
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected account, got nil")
	}
	if got.ID != a.ID {
		t.Errorf("id = %s, want %s", got.ID, a.ID)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", got.Email, "alice@example.com")
	}
	if got.Password != a.Password {
		t.Error("password hash not round-tripped")
	}
	if !bytes.Equal(got.Salt, a.Salt) {
		t.Error("salt not round-tripped")
	}
	if got.DateOfBirth == nil || got.DateOfBirth.Format("2006-01-02") != "1990-05-17" {
		t.Errorf("date_of_birth = %v, want 1990-05-17", got.DateOfBirth)
	}
	if got.Locale != "en_US" || got.Timezone != "UTC" {
		t.Errorf("locale/timezone = %q/%q", got.Locale, got.Timezone)
	}
	if got.LastLoginAt != nil {
		t.Errorf("last_login_at = %v, want nil", got.LastLoginAt)
	}
}

func TestAccountGetNotFound(t *testing.T) {
	s := setupAccountTestStore(t)

	a, err := s.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if a != nil {
		t.Error("expected nil for unknown id")
	}
}

func TestAccountGetByEmail(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	a := newTestAccount(t, "alice@example.com", testPassword)
	s.Save(ctx, a)

	got, err := s.GetByEmail(ctx, "  ALICE@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got == nil || got.ID != a.ID {
		t.Fatalf("got %v, want account %s", got, a.ID)
	}

	missing, err := s.GetByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestAccountSaveUpdates(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	a := newTestAccount(t, "alice@example.com", testPassword)
	s.Save(ctx, a)

	a.Activated = true
	a.DisplayName = "Alice L."
	a.SetPassword("another-password")
	if _, err := s.Save(ctx, a); err != nil {
		t.Fatalf("save update: %v", err)
	}

	got, _ := s.Get(ctx, a.ID)
	if !got.Activated {
		t.Error("activated not persisted")
	}
	if got.DisplayName != "Alice L." {
		t.Errorf("display_name = %q, want %q", got.DisplayName, "Alice L.")
	}

	if acct, _ := s.Authenticate(ctx, "alice@example.com", testPassword); acct != nil {
		t.Error("old password still authenticates")
	}
	if acct, _ := s.Authenticate(ctx, "alice@example.com", "another-password"); acct == nil {
		t.Error("new password does not authenticate")
	}
}

func TestAccountSaveDuplicateEmail(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	s.Save(ctx, newTestAccount(t, "alice@example.com", testPassword))

	_, err := s.Save(ctx, newTestAccount(t, "alice@example.com", "other-password"))
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Errorf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestAccountSaveConcurrentDuplicateEmail(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	accounts := []*model.Account{
		newTestAccount(t, "race@example.com", testPassword),
		newTestAccount(t, "race@example.com", testPassword),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(accounts))
	for i := range accounts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Save(ctx, accounts[i])
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicateEmail):
			dup++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Errorf("successes = %d, duplicates = %d, want 1 and 1", ok, dup)
	}
}

func TestAuthenticate(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	a := newTestAccount(t, "alice@example.com", testPassword)
	s.Save(ctx, a)

	got, err := s.Authenticate(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got == nil {
		t.Fatal("expected account, got nil")
	}
	if got.ID != a.ID {
		t.Errorf("id = %s, want %s", got.ID, a.ID)
	}
	if got.LastLoginAt == nil {
		t.Fatal("expected last_login_at set")
	}

	stored, _ := s.Get(ctx, a.ID)
	if stored.LastLoginAt == nil {
		t.Error("last_login_at not persisted")
	}
}

func TestAuthenticateFailures(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	s.Save(ctx, newTestAccount(t, "alice@example.com", testPassword))

	tests := []struct {
		name, email, password string
	}{
		{"wrong password", "alice@example.com", "wrong-password"},
		{"unknown email", "nobody@example.com", testPassword},
		{"empty password", "alice@example.com", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Authenticate(ctx, tt.email, tt.password)
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if got != nil {
				t.Error("expected nil account")
			}
		})
	}
}

func TestAuthenticateIgnoresStatus(t *testing.T) {
	s := setupAccountTestStore(t)
	ctx := context.Background()

	a := newTestAccount(t, "locked@example.com", testPassword)
	a.Locked = true
	s.Save(ctx, a)

	got, err := s.Authenticate(ctx, "locked@example.com", testPassword)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got == nil || !got.Locked {
		t.Error("expected locked account returned for the caller to reject")
	}
}

func TestAuthenticateCanceledContext(t *testing.T) {
	s := setupAccountTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Authenticate(ctx, "alice@example.com", testPassword)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestAuthenticateTimingSimilar(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	s := setupAccountTestStore(t)
	ctx := context.Background()

	a := newTestAccount(t, "alice@example.com", testPassword)
	s.Save(ctx, a)

	median := func(email, pw string) time.Duration {
		const runs = 7
		samples := make([]time.Duration, runs)
		for i := range samples {
			start := time.Now()
			if acct, err := s.Authenticate(ctx, email, pw); err != nil || acct != nil {
				t.Fatalf("authenticate(%q) = %v, %v", email, acct, err)
			}
			samples[i] = time.Since(start)
		}
		sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
		return samples[runs/2]
	}

	miss := median("nobody@example.com", testPassword)
	wrong := median("alice@example.com", "wrong-password")

	ratio := float64(miss) / float64(wrong)
	if ratio < 0.5 || ratio > 2 {
		t.Errorf("unknown email took %v, wrong password %v (ratio %.2f)", miss, wrong, ratio)
	}
}
