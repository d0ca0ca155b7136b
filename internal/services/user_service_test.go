package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserService(t *testing.T) {
	store := NewMemoryUserService()

	t.Run("Create and look up", func(t *testing.T) {
		user, err := store.CreateOrUpdateUser(" Ana@Example.com ", "Ana", TierStandard, 5000)
		require.NoError(t, err)
		assert.Equal(t, "ana@example.com", user.Email)

		byEmail, err := store.GetUserByEmail("ANA@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)

		byID, err := store.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.Equal(t, 5000, byID.RemainingTokens)
	})

	t.Run("Update keeps the id and name when empty", func(t *testing.T) {
		before, err := store.GetUserByEmail("ana@example.com")
		require.NoError(t, err)

		after, err := store.CreateOrUpdateUser("ana@example.com", "", TierElevated, 2500)
		require.NoError(t, err)

		assert.Equal(t, before.ID, after.ID)
		assert.Equal(t, "Ana", after.Name)
		assert.Equal(t, string(TierElevated), after.Tier)
		assert.Equal(t, 2500, after.RemainingTokens)
	})

	t.Run("Save token budget", func(t *testing.T) {
		user, err := store.GetUserByEmail("ana@example.com")
		require.NoError(t, err)

		require.NoError(t, store.SaveTokenBudget(user.ID, TierStandard, 0))

		user, err = store.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, user.RemainingTokens)
		assert.Equal(t, string(TierStandard), user.Tier)
	})

	t.Run("Unknown users", func(t *testing.T) {
		_, err := store.GetUserByID(uuid.New())
		assert.ErrorIs(t, err, ErrUserNotFound)
		_, err = store.GetUserByEmail("nadie@example.com")
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, store.SaveTokenBudget(uuid.New(), TierStandard, 1), ErrUserNotFound)
	})

	t.Run("Returned users are copies", func(t *testing.T) {
		user, err := store.GetUserByEmail("ana@example.com")
		require.NoError(t, err)
		user.RemainingTokens = 99

		fresh, err := store.GetUserByID(user.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, fresh.RemainingTokens)
	})
}
