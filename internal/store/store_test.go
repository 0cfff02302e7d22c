package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/dukerupert/emuse/internal/database"
	"github.com/dukerupert/emuse/internal/model"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestAccount(t *testing.T, email, plaintext string) *model.Account {
	t.Helper()
	a, err := model.NewAccount(email)
	if err != nil {
		t.Fatalf("new account: %v", err)
	}
	a.FirstName = "Alice"
	a.Surname = "Liddell"
	a.DisplayName = "alice"
	dob := time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC)
	a.DateOfBirth = &dob
	a.SetPassword(plaintext)
	return a
}
