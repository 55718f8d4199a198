package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/warden/internal/person"
	"github.com/mehmetcc/warden/pkg/id"
)

// Kind separates short-lived access tokens from long-lived refresh tokens.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Identity is the set of claims a token speaks for. Refresh tokens carry
// only SubjectID.
type Identity struct {
	SubjectID id.PublicID `json:"sub"`
	Email     string      `json:"email,omitempty"`
	Role      person.Role `json:"role,omitempty"`
}

func IdentityOf(p *person.Person) Identity {
	return Identity{SubjectID: p.PublicID, Email: p.Email, Role: p.Role}
}

// Claims is the signed payload.
type Claims struct {
	Email string      `json:"email,omitempty"`
	Role  person.Role `json:"role,omitempty"`
	Use   Kind        `json:"token_use"`
	jwt.RegisteredClaims
}

// Issued is a freshly signed token.
type Issued struct {
	Token     string
	ID        string
	ExpiresAt time.Time
}

type Pair struct {
	AccessToken      string
	AccessID         string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshID        string
	RefreshExpiresAt time.Time
}

// Verified is the outcome of a successful verification: the identity plus
// the token's id and validity window.
type Verified struct {
	Identity
	Kind      Kind
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
