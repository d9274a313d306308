package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"token-auth-server/internal/model"
)

func TestMemoryUserRepository(t *testing.T) {
	t.Parallel()

	repo := NewMemoryUserRepository(bcrypt.MinCost)
	ctx := context.Background()

	created, err := repo.Create(ctx, model.User{Username: "Alice", Email: "alice@example.com"}, "s3cret")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)
	assert.NotEqual(t, "s3cret", created.PasswordHash)

	t.Run("lookup is case insensitive", func(t *testing.T) {
		found, err := repo.FindByName(ctx, "  alice ")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("password check", func(t *testing.T) {
		assert.True(t, repo.CheckPassword(created, "s3cret"))
		assert.False(t, repo.CheckPassword(created, "wrong"))
		assert.False(t, repo.CheckPassword(model.User{}, ""))
	})

	t.Run("duplicates", func(t *testing.T) {
		_, err := repo.Create(ctx, model.User{Username: "ALICE", Email: "x@example.com"}, "pw")
		assert.ErrorIs(t, err, model.ErrUserAlreadyExists)

		_, err = repo.Create(ctx, model.User{Username: "alice2", Email: "Alice@Example.com"}, "pw")
		assert.ErrorIs(t, err, model.ErrUserAlreadyExists)
	})

	t.Run("delete", func(t *testing.T) {
		other, err := repo.Create(ctx, model.User{Username: "bob", Email: "bob@example.com"}, "pw")
		require.NoError(t, err)

		require.NoError(t, repo.Delete(ctx, other.ID))
		_, err = repo.FindByID(ctx, other.ID)
		assert.ErrorIs(t, err, model.ErrUserNotFound)
		assert.ErrorIs(t, repo.Delete(ctx, other.ID), model.ErrUserNotFound)
	})
}
