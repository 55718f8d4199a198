package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MaxCost bounds the work factor so a single hash stays within a few
// hundred milliseconds on commodity hardware.
const MaxCost = 15

// MaxSecretBytes is the longest secret bcrypt accepts, counted in bytes.
const MaxSecretBytes = 72

var ErrSecretTooLong = errors.New("password: secret exceeds 72 bytes")

type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, digest string) bool
}

type bcryptHasher struct {
	cost int
}

func NewHasher(cost int) (Hasher, error) {
	if cost < bcrypt.MinCost || cost > MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, MaxCost)
	}
	return &bcryptHasher{cost: cost}, nil
}

// Hash salts and hashes secret. Secrets over MaxSecretBytes are rejected
// with ErrSecretTooLong rather than truncated.
func (h *bcryptHasher) Hash(secret string) (string, error) {
	if len(secret) > MaxSecretBytes {
		return "", ErrSecretTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether secret matches digest. A malformed digest is a
// mismatch, not an error.
func (h *bcryptHasher) Verify(secret, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(secret)) == nil
}
