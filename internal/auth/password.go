package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is used when no explicit cost is configured.
const DefaultBcryptCost = 10

// ErrInvalidCredentials is returned when a password does not match the stored
// digest. Callers must not distinguish it from an unknown account in client
// facing responses.
var ErrInvalidCredentials = errors.New("invalid credentials")

// PasswordHasher derives and verifies bcrypt digests. The work factor is fixed
// at construction so every digest written by one process shares a cost.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a hasher with the provided bcrypt cost. Costs
// outside the bcrypt-supported range fall back to DefaultBcryptCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash derives a salted digest for the provided secret. bcrypt embeds the salt
// and cost in the digest, so two hashes of the same secret differ.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(digest), nil
}

// Verify reports whether the candidate secret matches the stored digest.
func (h *PasswordHasher) Verify(digest, candidate string) error {
	if digest == "" || candidate == "" {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(candidate)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}
