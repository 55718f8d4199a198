package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/config"
	"github.com/mehmetcc/warden/internal/password"
	"github.com/mehmetcc/warden/internal/person"
	"github.com/mehmetcc/warden/internal/revocation"
	"github.com/mehmetcc/warden/internal/token"
	"github.com/mehmetcc/warden/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"go.uber.org/zap/zaptest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *person.MemoryStore
	codec   *token.Codec
	revoked *revocation.Memory
	svc     AuthService
	now     time.Time
}

func newFixture(t *testing.T, wrap func(person.Store) person.Store) *fixture {
	t.Helper()
	f := &fixture{
		store: person.NewMemoryStore(),
		now:   testNow,
	}
	f.revoked = revocation.NewMemoryWithClock(func() time.Time { return f.now })
	hasher, err := password.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)
	f.codec, err = token.NewCodec(&config.JWTConfig{
		Secret:      "service-test-secret",
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  7 * 24 * time.Hour,
		JWTIssuer:   "warden",
		JWTAudience: "warden-api",
		JWTAlg:      "HS256",
	})
	require.NoError(t, err)

	var store person.Store = f.store
	if wrap != nil {
		store = wrap(store)
	}
	f.svc, err = NewAuthenticationService(store, hasher, f.codec, zaptest.NewLogger(t),
		WithRevocation(f.revoked),
		WithClock(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	return f
}

var adminActor = token.Identity{SubjectID: id.NewPublicID(), Role: person.RoleAdmin}

func (f *fixture) register(t *testing.T) *Session {
	t.Helper()
	sess, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "a@x.com",
		Username: "alice",
		Password: "Abcdefg1",
	})
	require.NoError(t, err)
	return sess
}

func TestRegisterIssuesVerifiablePair(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)

	assert.Equal(t, person.RoleUser, sess.Identity.Role)
	assert.Empty(t, sess.Person.Password)

	access, err := f.codec.Verify(sess.Tokens.AccessToken, token.KindAccess, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, person.RoleUser, access.Role)
	assert.Equal(t, "a@x.com", access.Email)

	refresh, err := f.codec.Verify(sess.Tokens.RefreshToken, token.KindRefresh, testNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, sess.Person.PublicID, refresh.SubjectID)

	_, err = f.codec.Verify(sess.Tokens.RefreshToken, token.KindAccess, testNow.Add(time.Minute))
	assert.True(t, errors.Is(err, autherr.ErrTokenWrongKind))
}

func TestRegisterConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "A@X.com", Username: "bob", Password: "Abcdefg1"})
	assert.True(t, errors.Is(err, autherr.Conflict("email")))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "b@x.com", Username: "alice", Password: "Abcdefg1"})
	assert.True(t, errors.Is(err, autherr.Conflict("username")))
}

func TestLoginByEmailOrUsername(t *testing.T) {
	f := newFixture(t, nil)
	registered := f.register(t)

	for _, ident := range []string{"a@x.com", "A@X.COM", "alice"} {
		t.Run(ident, func(t *testing.T) {
			sess, err := f.svc.Login(context.Background(), ident, "Abcdefg1")
			require.NoError(t, err)
			assert.Equal(t, registered.Person.PublicID, sess.Identity.SubjectID)
			assert.Empty(t, sess.Person.Password)
		})
	}

	stored, err := f.store.FindByID(context.Background(), registered.Person.PublicID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
	assert.True(t, testNow.Equal(*stored.LastLoginAt))
}

func TestLoginReturnsCurrentLastLogin(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	ctx := context.Background()

	first, err := f.svc.Login(ctx, "alice", "Abcdefg1")
	require.NoError(t, err)
	require.NotNil(t, first.Person.LastLoginAt)
	assert.True(t, testNow.Equal(*first.Person.LastLoginAt))

	f.now = testNow.Add(time.Hour)
	second, err := f.svc.Login(ctx, "alice", "Abcdefg1")
	require.NoError(t, err)
	require.NotNil(t, second.Person.LastLoginAt)
	assert.True(t, f.now.Equal(*second.Person.LastLoginAt))
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t, nil)
	f.register(t)
	ctx := context.Background()

	_, wrongSecret := f.svc.Login(ctx, "alice", "wrong-password")
	_, unknownUser := f.svc.Login(ctx, "mallory", "Abcdefg1")

	require.Error(t, wrongSecret)
	require.Error(t, unknownUser)
	assert.True(t, errors.Is(wrongSecret, autherr.ErrInvalidCredentials))
	assert.True(t, errors.Is(unknownUser, autherr.ErrInvalidCredentials))
	assert.Equal(t, wrongSecret.Error(), unknownUser.Error())

	e1, _ := autherr.As(wrongSecret)
	e2, _ := autherr.As(unknownUser)
	assert.Equal(t, e1.PublicMessage(), e2.PublicMessage())
}

func TestLoginInactiveAccount(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)
	ctx := context.Background()

	_, err := f.svc.SetActive(ctx, adminActor, sess.Person.PublicID, false)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "alice", "Abcdefg1")
	assert.True(t, errors.Is(err, autherr.ErrAccountInactive))
	assert.False(t, errors.Is(err, autherr.ErrInvalidCredentials))
}

// lastLoginFailingStore fails every update that only touches last_login_at.
type lastLoginFailingStore struct {
	person.Store
}

func (s lastLoginFailingStore) Update(ctx context.Context, publicID id.PublicID, patch person.Patch) (*person.Person, error) {
	if patch.LastLoginAt != nil {
		return nil, errors.New("database unavailable")
	}
	return s.Store.Update(ctx, publicID, patch)
}

func TestLoginSurvivesLastLoginFailure(t *testing.T) {
	f := newFixture(t, func(s person.Store) person.Store { return lastLoginFailingStore{s} })
	f.register(t)

	sess, err := f.svc.Login(context.Background(), "alice", "Abcdefg1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Tokens.AccessToken)
	assert.Nil(t, sess.Person.LastLoginAt)
}

func TestRefreshUsesCurrentRole(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)
	ctx := context.Background()

	_, err := f.svc.AssignRole(ctx, sess.Person.PublicID, person.RoleModerator)
	require.NoError(t, err)

	f.now = testNow.Add(time.Hour)
	res, err := f.svc.Refresh(ctx, sess.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, person.RoleModerator, res.Identity.Role)

	access, err := f.codec.Verify(res.AccessToken, token.KindAccess, f.now)
	require.NoError(t, err)
	assert.Equal(t, person.RoleModerator, access.Role)
	assert.True(t, f.now.Add(15*time.Minute).Equal(res.AccessExpiresAt))
}

func TestRefreshWithAccessTokenIsWrongKind(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)

	_, err := f.svc.Refresh(context.Background(), sess.Tokens.AccessToken)
	assert.True(t, errors.Is(err, autherr.ErrTokenWrongKind))
}

func TestRefreshExpired(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)

	f.now = testNow.Add(8 * 24 * time.Hour)
	_, err := f.svc.Refresh(context.Background(), sess.Tokens.RefreshToken)
	assert.True(t, errors.Is(err, autherr.ErrTokenExpired))
}

func TestRefreshInactivePerson(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)
	ctx := context.Background()

	_, err := f.svc.SetActive(ctx, adminActor, sess.Person.PublicID, false)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, sess.Tokens.RefreshToken)
	assert.True(t, errors.Is(err, autherr.ErrAccountInactive))
}

// vanishingStore reports every person as missing once they exist.
type vanishingStore struct {
	person.Store
}

func (vanishingStore) FindByID(context.Context, id.PublicID, ...person.FindOption) (*person.Person, error) {
	return nil, person.ErrNotFound
}

func TestRefreshMissingPerson(t *testing.T) {
	f := newFixture(t, func(s person.Store) person.Store { return vanishingStore{s} })
	sess := f.register(t)

	_, err := f.svc.Refresh(context.Background(), sess.Tokens.RefreshToken)
	assert.True(t, errors.Is(err, autherr.ErrNotFound))
}

func TestSetActiveRespectsRank(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.register(t)
	ctx := context.Background()
	bob, err := f.svc.Register(ctx, RegisterInput{Email: "b@x.com", Username: "bob", Password: "Abcdefg1"})
	require.NoError(t, err)
	carol, err := f.svc.Register(ctx, RegisterInput{Email: "c@x.com", Username: "carol", Password: "Abcdefg1"})
	require.NoError(t, err)

	_, err = f.svc.AssignRole(ctx, alice.Person.PublicID, person.RoleAdmin)
	require.NoError(t, err)
	_, err = f.svc.AssignRole(ctx, bob.Person.PublicID, person.RoleModerator)
	require.NoError(t, err)
	moderator := token.Identity{SubjectID: bob.Person.PublicID, Role: person.RoleModerator}
	admin := token.Identity{SubjectID: alice.Person.PublicID, Role: person.RoleAdmin}

	t.Run("moderator cannot deactivate an admin", func(t *testing.T) {
		_, err := f.svc.SetActive(ctx, moderator, alice.Person.PublicID, false)
		assert.True(t, errors.Is(err, autherr.ErrForbidden))
		stored, err := f.store.FindByID(ctx, alice.Person.PublicID)
		require.NoError(t, err)
		assert.True(t, stored.IsActive)
	})

	t.Run("nobody changes their own activity", func(t *testing.T) {
		_, err := f.svc.SetActive(ctx, moderator, bob.Person.PublicID, false)
		assert.True(t, errors.Is(err, autherr.ErrForbidden))
		_, err = f.svc.SetActive(ctx, admin, alice.Person.PublicID, false)
		assert.True(t, errors.Is(err, autherr.ErrForbidden))
	})

	t.Run("moderator deactivates a user", func(t *testing.T) {
		updated, err := f.svc.SetActive(ctx, moderator, carol.Person.PublicID, false)
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
	})

	t.Run("admin deactivates a moderator", func(t *testing.T) {
		updated, err := f.svc.SetActive(ctx, admin, bob.Person.PublicID, false)
		require.NoError(t, err)
		assert.False(t, updated.IsActive)
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := f.svc.SetActive(ctx, admin, id.NewPublicID(), false)
		assert.True(t, errors.Is(err, autherr.ErrNotFound))
	})
}

func TestLogoutRevokesTokens(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)
	ctx := context.Background()

	access, err := f.codec.Verify(sess.Tokens.AccessToken, token.KindAccess, testNow)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, sess.Tokens.RefreshToken, access))

	_, err = f.svc.Refresh(ctx, sess.Tokens.RefreshToken)
	assert.True(t, errors.Is(err, autherr.ErrTokenRevoked))

	revoked, err := f.revoked.IsRevoked(ctx, access.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestLogoutRejectsForeignRefreshToken(t *testing.T) {
	f := newFixture(t, nil)
	alice := f.register(t)
	bob, err := f.svc.Register(context.Background(), RegisterInput{Email: "b@x.com", Username: "bob", Password: "Abcdefg1"})
	require.NoError(t, err)

	bobAccess, err := f.codec.Verify(bob.Tokens.AccessToken, token.KindAccess, testNow)
	require.NoError(t, err)

	err = f.svc.Logout(context.Background(), alice.Tokens.RefreshToken, bobAccess)
	assert.True(t, errors.Is(err, autherr.ErrForbidden))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, sess.Person.PublicID, "not-it", "NewSecret9")
	assert.True(t, errors.Is(err, autherr.ErrInvalidCredentials))

	require.NoError(t, f.svc.ChangePassword(ctx, sess.Person.PublicID, "Abcdefg1", "NewSecret9"))

	_, err = f.svc.Login(ctx, "alice", "Abcdefg1")
	assert.True(t, errors.Is(err, autherr.ErrInvalidCredentials))
	_, err = f.svc.Login(ctx, "alice", "NewSecret9")
	assert.NoError(t, err)
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t, nil)
	sess := f.register(t)
	ctx := context.Background()

	updated, err := f.svc.AssignRole(ctx, sess.Person.PublicID, person.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, person.RoleAdmin, updated.Role)

	_, err = f.svc.AssignRole(ctx, sess.Person.PublicID, person.Role("manager"))
	assert.Error(t, err)

	_, err = f.svc.AssignRole(ctx, id.NewPublicID(), person.RoleAdmin)
	assert.True(t, errors.Is(err, autherr.ErrNotFound))
}
