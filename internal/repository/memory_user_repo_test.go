package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository(t *testing.T) {
	t.Parallel()

	runUserStoreContract(t, func(*testing.T) userStore {
		return NewMemoryUserRepository()
	})
}

func TestMemoryUserRepositoryReturnsCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := newContractUser("ana@example.com")
	require.NoError(t, repo.Create(ctx, u))
	require.NoError(t, repo.SetRefreshToken(ctx, u.ID, strPtr("rt-1")))

	got, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	*got.RefreshToken = "tampered"
	got.Email = "other@example.com"

	again, err := repo.FindByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "rt-1", *again.RefreshToken)
	require.Equal(t, "ana@example.com", again.Email)
}
