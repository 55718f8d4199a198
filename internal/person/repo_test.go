package person_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/mehmetcc/warden/internal/autherr"
	"github.com/mehmetcc/warden/internal/config"
	"github.com/mehmetcc/warden/internal/database"
	"github.com/mehmetcc/warden/internal/person"
	"github.com/mehmetcc/warden/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// openTestDB connects to POSTGRES_TEST_DSN and migrates it. Tests using it
// are skipped when the variable is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()

	db, err := database.Init(ctx, &config.DbConfig{DSN: dsn, MaxOpenConns: 4})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, zaptest.NewLogger(t)))
	_, err = db.ExecContext(ctx, `TRUNCATE persons RESTART IDENTITY`)
	require.NoError(t, err)
	return db
}

func TestPersonRepo(t *testing.T) {
	db := openTestDB(t)
	repo := person.NewPersonRepo(db, zaptest.NewLogger(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, &person.PersonDTO{
		Email:    "Alice@Example.com",
		Username: "alice",
		Password: "digest",
		Role:     person.RoleUser,
		IsActive: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Empty(t, created.Password)
	_, err = id.ParsePublicID(created.PublicID.String())
	require.NoError(t, err)

	t.Run("unique email ignores case", func(t *testing.T) {
		_, err := repo.Create(ctx, &person.PersonDTO{
			Email: "ALICE@example.com", Username: "other", Password: "digest", Role: person.RoleUser,
		})
		assert.True(t, errors.Is(err, autherr.Conflict("email")))
	})

	t.Run("unique username", func(t *testing.T) {
		_, err := repo.Create(ctx, &person.PersonDTO{
			Email: "b@example.com", Username: "alice", Password: "digest", Role: person.RoleUser,
		})
		assert.True(t, errors.Is(err, autherr.Conflict("username")))
	})

	t.Run("find by identifier", func(t *testing.T) {
		byEmail, err := repo.FindByIdentifier(ctx, "alice@EXAMPLE.com", person.WithSecret())
		require.NoError(t, err)
		assert.Equal(t, created.PublicID, byEmail.PublicID)
		assert.Equal(t, "digest", byEmail.Password)

		byName, err := repo.FindByIdentifier(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, created.PublicID, byName.PublicID)
		assert.Empty(t, byName.Password)

		_, err = repo.FindByIdentifier(ctx, "nobody")
		assert.True(t, errors.Is(err, person.ErrNotFound))
	})

	t.Run("update", func(t *testing.T) {
		role := person.RoleModerator
		at := time.Now().UTC().Truncate(time.Microsecond)
		updated, err := repo.Update(ctx, created.PublicID, person.Patch{Role: &role, LastLoginAt: &at})
		require.NoError(t, err)
		assert.Equal(t, person.RoleModerator, updated.Role)
		require.NotNil(t, updated.LastLoginAt)
		assert.True(t, at.Equal(*updated.LastLoginAt))
		assert.True(t, updated.IsActive)

		_, err = repo.Update(ctx, id.NewPublicID(), person.Patch{Role: &role})
		assert.True(t, errors.Is(err, person.ErrNotFound))
	})
}
