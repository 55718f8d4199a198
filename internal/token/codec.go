package token

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/config"
	"github.com/mehmetcc/warden/pkg/id"
)

var signingMethods = map[string]*jwt.SigningMethodHMAC{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Codec signs and verifies access and refresh tokens. It holds only
// immutable configuration and is safe for concurrent use.
type Codec struct {
	method     *jwt.SigningMethodHMAC
	accessKey  []byte
	refreshKey []byte
	kid        string
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	parser     *jwt.Parser
}

// NewCodec refuses to build a codec without signing material. Its errors
// are ConfigurationFatal and must stop the process.
func NewCodec(cfg *config.JWTConfig) (*Codec, error) {
	if cfg == nil || cfg.Secret == "" {
		return nil, autherr.ConfigurationFatal("JWT_SECRET", "signing secret must be set")
	}
	alg := cfg.JWTAlg
	if alg == "" {
		alg = jwt.SigningMethodHS256.Alg()
	}
	method, ok := signingMethods[alg]
	if !ok {
		return nil, autherr.ConfigurationFatal("JWT_ALG", fmt.Sprintf("unsupported algorithm %q", alg))
	}
	if cfg.JWTIssuer == "" {
		return nil, autherr.ConfigurationFatal("JWT_ISSUER", "must be set")
	}
	if cfg.JWTAudience == "" {
		return nil, autherr.ConfigurationFatal("JWT_AUDIENCE", "must be set")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, autherr.ConfigurationFatal("ACCESS_TTL/REFRESH_TTL", "must be positive")
	}

	refreshKey := cfg.RefreshSecret
	if refreshKey == "" {
		refreshKey = cfg.Secret
	}

	return &Codec{
		method:     method,
		accessKey:  []byte(cfg.Secret),
		refreshKey: []byte(refreshKey),
		kid:        cfg.JWTKID,
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

func (c *Codec) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.refreshTTL
	}
	return c.accessTTL
}

// Issue signs a token of the given kind for identity. Refresh tokens carry
// the subject only.
func (c *Codec) Issue(identity Identity, kind Kind, now time.Time) (*Issued, error) {
	if identity.SubjectID == "" {
		return nil, errors.New("issue token: empty subject")
	}
	// NumericDate has second precision: iat/nbf round down and exp rounds up
	// so the token never lives shorter than its configured TTL
	issuedAt := now.UTC().Truncate(time.Second)
	exp := ceilSecond(now.UTC().Add(c.TTL(kind)))
	tokenID := id.NewTokenID()

	claims := &Claims{
		Use: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   identity.SubjectID.String(),
			Audience:  jwt.ClaimStrings{c.audience},
			ExpiresAt: jwt.NewNumericDate(exp),
			NotBefore: jwt.NewNumericDate(issuedAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        tokenID,
		},
	}
	switch kind {
	case KindAccess:
		if !identity.Role.Valid() {
			return nil, fmt.Errorf("issue access token: invalid role %q", identity.Role)
		}
		claims.Email = identity.Email
		claims.Role = identity.Role
	case KindRefresh:
	default:
		return nil, fmt.Errorf("issue token: unknown kind %q", kind)
	}

	jwtToken := jwt.NewWithClaims(c.method, claims)
	if c.kid != "" {
		jwtToken.Header["kid"] = c.kid
	}
	signed, err := jwtToken.SignedString(c.key(kind))
	if err != nil {
		return nil, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return &Issued{Token: signed, ID: tokenID, ExpiresAt: exp}, nil
}

// IssuePair issues an access and a refresh token at the same instant.
func (c *Codec) IssuePair(identity Identity, now time.Time) (*Pair, error) {
	access, err := c.Issue(identity, KindAccess, now)
	if err != nil {
		return nil, err
	}
	refresh, err := c.Issue(identity, KindRefresh, now)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access.Token,
		AccessID:         access.ID,
		AccessExpiresAt:  access.ExpiresAt,
		RefreshToken:     refresh.Token,
		RefreshID:        refresh.ID,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, nil
}

// Verify checks structure, signature, issuer, audience, validity window and
// kind, in that order, and returns the embedded identity.
func (c *Codec) Verify(tokenString string, expected Kind, now time.Time) (*Verified, error) {
	if tokenString == "" {
		return nil, autherr.New(autherr.KindTokenMalformed, "empty token")
	}

	var claims Claims
	_, err := c.parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		// claims are decoded before the key is chosen; the key follows the declared use
		if cl, ok := t.Claims.(*Claims); ok && cl.Use == KindRefresh {
			return c.refreshKey, nil
		}
		return c.accessKey, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.Issuer != c.issuer {
		return nil, autherr.New(autherr.KindTokenAudienceMismatch, fmt.Sprintf("unexpected issuer %q", claims.Issuer))
	}
	if !slices.Contains(claims.Audience, c.audience) {
		return nil, autherr.New(autherr.KindTokenAudienceMismatch, "audience not accepted")
	}

	if claims.ExpiresAt == nil {
		return nil, autherr.New(autherr.KindTokenMalformed, "missing exp")
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, autherr.New(autherr.KindTokenExpired, "token expired")
	}
	if claims.NotBefore != nil && now.Before(claims.NotBefore.Time) {
		return nil, autherr.New(autherr.KindTokenExpired, "token not valid yet")
	}

	if err := checkShape(&claims); err != nil {
		return nil, err
	}
	if claims.Use != expected {
		return nil, autherr.New(autherr.KindTokenWrongKind, fmt.Sprintf("got %s token, want %s", claims.Use, expected))
	}

	v := &Verified{
		Identity: Identity{
			SubjectID: id.PublicID(claims.Subject),
			Email:     claims.Email,
			Role:      claims.Role,
		},
		Kind:      claims.Use,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		v.IssuedAt = claims.IssuedAt.Time
	}
	return v, nil
}

func ceilSecond(t time.Time) time.Time {
	if down := t.Truncate(time.Second); down.Before(t) {
		return down.Add(time.Second)
	}
	return t
}

func (c *Codec) key(kind Kind) []byte {
	if kind == KindRefresh {
		return c.refreshKey
	}
	return c.accessKey
}

// checkShape rejects tokens whose claims do not fit their declared use: a
// refresh token never carries email or role, an access token always does.
func checkShape(claims *Claims) error {
	if claims.Subject == "" {
		return autherr.New(autherr.KindTokenMalformed, "missing subject")
	}
	if claims.ID == "" {
		return autherr.New(autherr.KindTokenMalformed, "missing jti")
	}
	switch claims.Use {
	case KindAccess:
		if !claims.Role.Valid() {
			return autherr.New(autherr.KindTokenMalformed, "access token with invalid role")
		}
	case KindRefresh:
		if claims.Role != "" || claims.Email != "" {
			return autherr.New(autherr.KindTokenMalformed, "refresh token carrying identity claims")
		}
	default:
		return autherr.New(autherr.KindTokenMalformed, fmt.Sprintf("unknown token_use %q", claims.Use))
	}
	return nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return autherr.Wrap(autherr.KindTokenMalformed, "cannot parse token", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return autherr.Wrap(autherr.KindTokenSignatureInvalid, "signature rejected", err)
	default:
		return autherr.Wrap(autherr.KindTokenMalformed, "token rejected", err)
	}
}
