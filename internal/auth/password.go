package auth

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/stockassistant/orchestrator/internal/logging"
)

// maxBcryptBytes is bcrypt's hard input limit; passwords are truncated
// to it before hashing/verification, matching
// original_source/.../app/crud/user.py's hash_password/verify_password.
const maxBcryptBytes = 72

// PasswordHasher wraps bcrypt with the truncation behavior and warning
// log the teacher's password-handling paths apply whenever input is
// silently clipped.
type PasswordHasher struct {
	cost int
	log  *logging.Logger
}

// NewPasswordHasher builds a hasher at bcrypt's default cost.
func NewPasswordHasher(log *logging.Logger) *PasswordHasher {
	return &PasswordHasher{cost: bcrypt.DefaultCost, log: log}
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > maxBcryptBytes {
		return b[:maxBcryptBytes]
	}
	return b
}

// Hash bcrypt-hashes password, truncating to 72 bytes first.
func (h *PasswordHasher) Hash(password string) (string, error) {
	b := []byte(password)
	if len(b) > maxBcryptBytes && h.log != nil {
		h.log.Warn("password exceeds bcrypt's 72-byte limit, truncating before hashing")
	}
	hash, err := bcrypt.GenerateFromPassword(truncate(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether password matches hash, in constant time via
// bcrypt's own comparison.
func (h *PasswordHasher) Verify(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), truncate(password))
	return err == nil
}
