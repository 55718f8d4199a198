package auth

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mehmetcc/warden/internal/password"
	"github.com/mehmetcc/warden/internal/person"
)

// validSecret backs the "secret" tag: bcrypt limits bytes, while max= counts
// runes.
func validSecret(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= password.MaxSecretBytes
}

type registerPersonRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Username string `json:"username" validate:"required,min=3,max=32,alphanum"`
	Password string `json:"password" validate:"required,min=8,secret"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password"   validate:"required,secret"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"omitempty,max=4096"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required,secret"`
	NewPassword     string `json:"new_password"     validate:"required,min=8,secret,nefield=CurrentPassword"`
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin moderator user"`
}

type setActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type personResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Role        string     `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func newPersonResponse(p *person.Person) personResponse {
	return personResponse{
		ID:          p.PublicID.String(),
		Email:       p.Email,
		Username:    p.Username,
		Role:        string(p.Role),
		IsActive:    p.IsActive,
		LastLoginAt: p.LastLoginAt,
	}
}

type sessionResponse struct {
	User             personResponse `json:"user"`
	AccessToken      string         `json:"access_token"`
	AccessExpiresAt  time.Time      `json:"access_expires_at"`
	RefreshToken     string         `json:"refresh_token"`
	RefreshExpiresAt time.Time      `json:"refresh_expires_at"`
	TokenType        string         `json:"token_type"`
}

func newSessionResponse(s *Session) sessionResponse {
	return sessionResponse{
		User:             newPersonResponse(s.Person),
		AccessToken:      s.Tokens.AccessToken,
		AccessExpiresAt:  s.Tokens.AccessExpiresAt,
		RefreshToken:     s.Tokens.RefreshToken,
		RefreshExpiresAt: s.Tokens.RefreshExpiresAt,
		TokenType:        "Bearer",
	}
}

type refreshResponse struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
	TokenType       string    `json:"token_type"`
}

type meResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
