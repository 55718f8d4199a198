package id

import (
	"fmt"

	"github.com/google/uuid"
)

// PublicID is the externally visible identifier of a person. It is the
// subject of every token; the internal serial id never leaves the database.
type PublicID string

func NewPublicID() PublicID {
	return PublicID(uuid.NewString())
}

func ParsePublicID(s string) (PublicID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid public id %q: %w", s, err)
	}
	return PublicID(u.String()), nil
}

func (p PublicID) String() string { return string(p) }

// NewTokenID returns a random token identifier (jti).
func NewTokenID() string {
	return uuid.NewString()
}
