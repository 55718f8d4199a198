package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/metrics"
	"github.com/mehmetcc/warden/internal/password"
	"github.com/mehmetcc/warden/internal/person"
	"github.com/mehmetcc/warden/internal/revocation"
	"github.com/mehmetcc/warden/internal/token"
	"github.com/mehmetcc/warden/pkg/id"
	"go.uber.org/zap"
)

type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*Session, error)
	Login(ctx context.Context, identifier, secret string) (*Session, error)
	Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error)
	Logout(ctx context.Context, refreshToken string, access *token.Verified) error
	ChangePassword(ctx context.Context, subject id.PublicID, current, next string) error
	AssignRole(ctx context.Context, subject id.PublicID, role person.Role) (*person.Person, error)
	// SetActive refuses changes to the actor's own account and, for actors
	// below admin, to persons of equal or higher rank.
	SetActive(ctx context.Context, actor token.Identity, subject id.PublicID, active bool) (*person.Person, error)
}

type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// Session is the outcome of a successful register or login.
type Session struct {
	Person   *person.Person
	Identity token.Identity
	Tokens   *token.Pair
}

type RefreshResult struct {
	Identity        token.Identity
	AccessToken     string
	AccessExpiresAt time.Time
}

type authService struct {
	store    person.Store
	hasher   password.Hasher
	codec    *token.Codec
	revoked  revocation.Store
	metrics  metrics.Recorder
	logger   *zap.Logger
	now      func() time.Time
	dummyPwd string
}

type Option func(*authService)

// WithRevocation enables logout by consulting and feeding a deny-list.
func WithRevocation(s revocation.Store) Option {
	return func(a *authService) { a.revoked = s }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(a *authService) { a.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(a *authService) { a.now = now }
}

func NewAuthenticationService(store person.Store, hasher password.Hasher, codec *token.Codec, logger *zap.Logger, opts ...Option) (AuthService, error) {
	a := &authService{
		store:   store,
		hasher:  hasher,
		codec:   codec,
		metrics: metrics.Nop{},
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	// unknown identifiers are checked against this digest so both failure
	// paths pay the same hashing cost
	dummy, err := hasher.Hash("warden-timing-equalizer")
	if err != nil {
		return nil, fmt.Errorf("prepare dummy digest: %w", err)
	}
	a.dummyPwd = dummy
	return a, nil
}

func (a *authService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	hashed, err := a.hashSecret(in.Password)
	if err != nil {
		return nil, err
	}

	created, err := a.store.Create(ctx, &person.PersonDTO{
		Email:    in.Email,
		Username: in.Username,
		Password: hashed,
		Role:     person.RoleUser,
		IsActive: true,
	})
	if err != nil {
		if errors.Is(err, autherr.ErrConflict) {
			a.logger.Debug("register conflict", zap.Error(err))
		}
		return nil, err
	}

	sess, err := a.issueSession(created)
	if err != nil {
		return nil, err
	}
	a.logger.Info("person registered", zap.String("public_id", created.PublicID.String()))
	return sess, nil
}

func (a *authService) Login(ctx context.Context, identifier, secret string) (*Session, error) {
	found, err := a.store.FindByIdentifier(ctx, identifier, person.WithSecret())
	if err != nil {
		if errors.Is(err, person.ErrNotFound) || errors.Is(err, person.ErrAmbiguousIdentifier) {
			a.hasher.Verify(secret, a.dummyPwd)
			a.metrics.LoginAttempt("invalid_credentials")
			return nil, autherr.ErrInvalidCredentials
		}
		a.logger.Error("failed to look up person for login", zap.Error(err))
		return nil, err
	}

	if !found.IsActive {
		a.metrics.LoginAttempt("inactive")
		return nil, autherr.ErrAccountInactive
	}

	if !a.hasher.Verify(secret, found.Password) {
		a.metrics.LoginAttempt("invalid_credentials")
		return nil, autherr.ErrInvalidCredentials
	}
	found.Password = ""

	// best effort: a failed bookkeeping write never fails the login
	now := a.now().UTC()
	if _, err := a.store.Update(ctx, found.PublicID, person.Patch{LastLoginAt: &now}); err != nil {
		a.logger.Warn("failed to record last login",
			zap.String("public_id", found.PublicID.String()),
			zap.Error(err),
		)
	} else {
		found.LastLoginAt = &now
	}

	sess, err := a.issueSession(found)
	if err != nil {
		return nil, err
	}

	a.metrics.LoginAttempt("success")
	return sess, nil
}

func (a *authService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	verified, err := a.codec.Verify(refreshToken, token.KindRefresh, a.now())
	if err != nil {
		a.metrics.TokenRejected(autherr.KindOf(err).String())
		return nil, err
	}
	if err := a.checkRevoked(ctx, verified.ID); err != nil {
		return nil, err
	}

	// the role is always re-read; the refresh token never carries it
	current, err := a.store.FindByID(ctx, verified.SubjectID)
	if err != nil {
		if errors.Is(err, person.ErrNotFound) {
			a.logger.Debug("refresh for missing person", zap.String("public_id", verified.SubjectID.String()))
		}
		return nil, err
	}
	if !current.IsActive {
		return nil, autherr.ErrAccountInactive
	}

	ident := token.IdentityOf(current)
	access, err := a.codec.Issue(ident, token.KindAccess, a.now())
	if err != nil {
		a.logger.Error("failed to sign access token", zap.Error(err))
		return nil, err
	}
	a.metrics.TokenIssued(string(token.KindAccess))

	return &RefreshResult{
		Identity:        ident,
		AccessToken:     access.Token,
		AccessExpiresAt: access.ExpiresAt,
	}, nil
}

// Logout revokes the refresh token and, when given, the access token that
// made the call. Without a revocation store tokens are stateless and this
// only validates the refresh token.
func (a *authService) Logout(ctx context.Context, refreshToken string, access *token.Verified) error {
	verified, err := a.codec.Verify(refreshToken, token.KindRefresh, a.now())
	if err != nil {
		a.metrics.TokenRejected(autherr.KindOf(err).String())
		return err
	}
	if access != nil && access.SubjectID != verified.SubjectID {
		return autherr.New(autherr.KindForbidden, "refresh token belongs to another subject")
	}
	if a.revoked == nil {
		return nil
	}

	if err := a.revoked.Revoke(ctx, verified.ID, verified.ExpiresAt); err != nil {
		return err
	}
	if access != nil {
		if err := a.revoked.Revoke(ctx, access.ID, access.ExpiresAt); err != nil {
			return err
		}
	}
	a.logger.Debug("tokens revoked", zap.String("public_id", verified.SubjectID.String()))
	return nil
}

func (a *authService) ChangePassword(ctx context.Context, subject id.PublicID, current, next string) error {
	found, err := a.store.FindByID(ctx, subject, person.WithSecret())
	if err != nil {
		return err
	}
	if !a.hasher.Verify(current, found.Password) {
		return autherr.ErrInvalidCredentials
	}

	hashed, err := a.hashSecret(next)
	if err != nil {
		return err
	}
	if _, err := a.store.Update(ctx, subject, person.Patch{Password: &hashed}); err != nil {
		return err
	}
	a.logger.Info("password changed", zap.String("public_id", subject.String()))
	return nil
}

func (a *authService) AssignRole(ctx context.Context, subject id.PublicID, role person.Role) (*person.Person, error) {
	if _, err := person.ParseRole(string(role)); err != nil {
		return nil, fmt.Errorf("assign role: %w", err)
	}
	updated, err := a.store.Update(ctx, subject, person.Patch{Role: &role})
	if err != nil {
		return nil, err
	}
	a.logger.Info("role assigned",
		zap.String("public_id", subject.String()),
		zap.String("role", string(role)),
	)
	return updated, nil
}

func (a *authService) SetActive(ctx context.Context, actor token.Identity, subject id.PublicID, active bool) (*person.Person, error) {
	if actor.SubjectID == subject {
		return nil, autherr.New(autherr.KindForbidden, "cannot change own activity")
	}
	target, err := a.store.FindByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	if actor.Role != person.RoleAdmin && !actor.Role.Outranks(target.Role) {
		a.logger.Warn("activity change refused",
			zap.String("actor", actor.SubjectID.String()),
			zap.String("public_id", subject.String()),
			zap.String("target_role", string(target.Role)),
		)
		return nil, autherr.Forbidden(string(person.RoleAdmin))
	}

	updated, err := a.store.Update(ctx, subject, person.Patch{IsActive: &active})
	if err != nil {
		return nil, err
	}
	a.logger.Info("activity changed",
		zap.String("actor", actor.SubjectID.String()),
		zap.String("public_id", subject.String()),
		zap.Bool("active", active),
	)
	return updated, nil
}

func (a *authService) hashSecret(secret string) (string, error) {
	hashed, err := a.hasher.Hash(secret)
	if err != nil {
		if errors.Is(err, password.ErrSecretTooLong) {
			a.logger.Warn("rejected overlong secret", zap.Int("bytes", len(secret)))
		} else {
			a.logger.Error("failed to hash password", zap.Error(err))
		}
		return "", err
	}
	return hashed, nil
}

func (a *authService) issueSession(p *person.Person) (*Session, error) {
	ident := token.IdentityOf(p)
	pair, err := a.codec.IssuePair(ident, a.now())
	if err != nil {
		a.logger.Error("failed to sign token pair", zap.Error(err))
		return nil, err
	}
	a.metrics.TokenIssued(string(token.KindAccess))
	a.metrics.TokenIssued(string(token.KindRefresh))
	return &Session{Person: p, Identity: ident, Tokens: pair}, nil
}

func (a *authService) checkRevoked(ctx context.Context, tokenID string) error {
	if a.revoked == nil {
		return nil
	}
	revoked, err := a.revoked.IsRevoked(ctx, tokenID)
	if err != nil {
		a.logger.Error("failed to check revocation list", zap.Error(err))
		return err
	}
	if revoked {
		a.metrics.TokenRejected(autherr.KindTokenRevoked.String())
		return autherr.New(autherr.KindTokenRevoked, "token revoked")
	}
	return nil
}
