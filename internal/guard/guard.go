// Package guard gates HTTP handlers on a verified access token and, where
// asked, on the caller's role.
//
// A call moves through NoToken → Extracted → Verified → Authorized and stops
// at the first failed transition. Require rejects on any failure; Optional
// lets the call through anonymously instead.
package guard

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/httpx"
	"github.com/mehmetcc/warden/internal/metrics"
	"github.com/mehmetcc/warden/internal/person"
	"github.com/mehmetcc/warden/internal/revocation"
	"github.com/mehmetcc/warden/internal/token"
	"go.uber.org/zap"
)

const bearerPrefix = "bearer "

// Principal is the authenticated context of one call. It lives only as long
// as the request context it is attached to.
type Principal struct {
	token.Identity
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type contextKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the principal the guard attached, if any.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(*Principal)
	return p, ok && p != nil
}

// Verified rebuilds the token view of the principal.
func (p *Principal) Verified() *token.Verified {
	return &token.Verified{
		Identity:  p.Identity,
		Kind:      token.KindAccess,
		ID:        p.TokenID,
		IssuedAt:  p.IssuedAt,
		ExpiresAt: p.ExpiresAt,
	}
}

type Guard struct {
	codec   *token.Codec
	revoked revocation.Store
	metrics metrics.Recorder
	logger  *zap.Logger
	now     func() time.Time
}

type Option func(*Guard)

func WithRevocation(s revocation.Store) Option {
	return func(g *Guard) { g.revoked = s }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(g *Guard) { g.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

func New(codec *token.Codec, logger *zap.Logger, opts ...Option) *Guard {
	g := &Guard{
		codec:   codec,
		metrics: metrics.Nop{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Extract pulls the token out of an Authorization header value. A missing
// header is Unauthenticated; a header that is not a bearer credential is
// TokenMalformed.
func Extract(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", autherr.New(autherr.KindUnauthenticated, "no bearer token")
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", autherr.New(autherr.KindTokenMalformed, "authorization header is not a bearer credential")
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	if raw == "" {
		return "", autherr.New(autherr.KindTokenMalformed, "empty bearer token")
	}
	return raw, nil
}

// Authenticate extracts and verifies an access token.
func (g *Guard) Authenticate(ctx context.Context, header string) (*Principal, error) {
	raw, err := Extract(header)
	if err != nil {
		return nil, err
	}

	v, err := g.codec.Verify(raw, token.KindAccess, g.now())
	if err != nil {
		g.metrics.TokenRejected(autherr.KindOf(err).String())
		return nil, err
	}

	if g.revoked != nil {
		revoked, err := g.revoked.IsRevoked(ctx, v.ID)
		if err != nil {
			g.logger.Error("failed to check revocation list", zap.Error(err))
			return nil, err
		}
		if revoked {
			g.metrics.TokenRejected(autherr.KindTokenRevoked.String())
			return nil, autherr.New(autherr.KindTokenRevoked, "token revoked")
		}
	}

	return &Principal{
		Identity:  v.Identity,
		TokenID:   v.ID,
		IssuedAt:  v.IssuedAt,
		ExpiresAt: v.ExpiresAt,
	}, nil
}

// Authorize checks the principal's role against roles. An empty set admits
// any authenticated principal.
func Authorize(p *Principal, roles ...person.Role) error {
	if p == nil {
		return autherr.New(autherr.KindUnauthenticated, "no principal")
	}
	if len(roles) == 0 || slices.Contains(roles, p.Role) {
		return nil
	}
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return autherr.Forbidden(names...)
}

// Require rejects the call unless it carries a valid access token whose role
// is one of roles (any role when roles is empty).
func (g *Guard) Require(roles ...person.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err == nil {
				err = Authorize(p, roles...)
			}
			if err != nil {
				kind := autherr.KindOf(err)
				g.metrics.GuardDecision(kind.String())
				g.logger.Debug("request rejected",
					zap.String("path", r.URL.Path),
					zap.String("reason", kind.String()),
				)
				httpx.WriteAuthError(w, err, false)
				return
			}
			g.metrics.GuardDecision("authorized")
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// Optional attaches a principal when the call carries a valid access token
// and otherwise passes the call on untouched.
func (g *Guard) Optional() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				g.metrics.GuardDecision("anonymous")
				next.ServeHTTP(w, r)
				return
			}
			g.metrics.GuardDecision("authorized")
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
