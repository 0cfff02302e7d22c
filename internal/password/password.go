// Package password derives and checks PBKDF2-SHA256 password hashes.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	Iterations = 100000
	SaltSize   = 16
	KeyLength  = 32
)

// NewSalt returns SaltSize bytes from the system CSPRNG.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Hash returns the standard base64 encoding of the derived key.
func Hash(password string, salt []byte) string {
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeyLength, sha256.New)
	return base64.StdEncoding.EncodeToString(key)
}

// Verify reports whether password hashes to encoded under salt.
func Verify(password string, salt []byte, encoded string) bool {
	got := Hash(password, salt)
	return subtle.ConstantTimeCompare([]byte(got), []byte(encoded)) == 1
}
