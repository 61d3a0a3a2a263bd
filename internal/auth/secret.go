package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	secretBytes      = 16
	displayNameBytes = 8
)

// Secrets generates random codes and hashes them with bcrypt
type Secrets struct {
	cost int
}

// NewSecrets creates a generator hashing with the given bcrypt cost.
// A cost outside bcrypt's range falls back to bcrypt.DefaultCost.
func NewSecrets(cost int) *Secrets {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Secrets{cost: cost}
}

// GenerateSecret returns 128 random bits, hex encoded
func (s *Secrets) GenerateSecret() (string, error) {
	return randomHex(secretBytes)
}

// Hash returns a freshly salted bcrypt hash of secret
func (s *Secrets) Hash(secret string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(secret), s.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(h), nil
}

// Verify reports whether candidate matches hash
func (s *Secrets) Verify(candidate, hash string) bool {
	if candidate == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(candidate)) == nil
}

// DisplayName returns a placeholder name for a newly created user
func (s *Secrets) DisplayName() (string, error) {
	suffix, err := randomHex(displayNameBytes)
	if err != nil {
		return "", err
	}
	return "User " + suffix, nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}
